package models

// Union is a labor-union affiliation.
type Union struct {
	ID          uint    `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string  `gorm:"size:100;uniqueIndex;not null" json:"name"`
	Description *string `gorm:"size:255" json:"description"`
}

// Person is identified by email for upserts. FoundInSystem records the last reconciliation verdict.
type Person struct {
	ID            uint                  `gorm:"primaryKey;autoIncrement" json:"id"`
	Username      *string               `gorm:"size:100" json:"username"`
	Name          string                `gorm:"size:255;not null" json:"name"`
	Email         string                `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Organization  *string               `gorm:"size:100" json:"organization"`
	FoundInSystem bool                  `gorm:"not null;default:false" json:"foundInSystem"`
	UnionID       *uint                 `gorm:"index" json:"unionId"`
	Union         *Union                `gorm:"foreignKey:UnionID;constraint:OnDelete:SET NULL" json:"union,omitempty"`
	Memberships   []CommitteeMembership `gorm:"foreignKey:PersonID" json:"memberships,omitempty"`
}

// Role is a person's function within a committee.
type Role struct {
	ID   uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Name string `gorm:"size:100;uniqueIndex;not null" json:"name"`
}

// CommitteeMembership joins Person, Role and Committee. The triple is the primary key.
type CommitteeMembership struct {
	PersonID    uint       `gorm:"primaryKey;autoIncrement:false" json:"personId"`
	RoleID      uint       `gorm:"primaryKey;autoIncrement:false" json:"roleId"`
	CommitteeID uint       `gorm:"primaryKey;autoIncrement:false;index" json:"committeeId"`
	Person      *Person    `gorm:"foreignKey:PersonID;constraint:OnDelete:CASCADE" json:"person,omitempty"`
	Role        *Role      `gorm:"foreignKey:RoleID;constraint:OnDelete:RESTRICT" json:"role,omitempty"`
	Committee   *Committee `gorm:"foreignKey:CommitteeID;constraint:OnDelete:CASCADE" json:"committee,omitempty"`
}

// TableName overrides the table name for Union
func (Union) TableName() string {
	return "union"
}

// TableName overrides the table name for Person
func (Person) TableName() string {
	return "person"
}

// TableName overrides the table name for Role
func (Role) TableName() string {
	return "role"
}

// TableName overrides the table name for CommitteeMembership
func (CommitteeMembership) TableName() string {
	return "committee_membership"
}
