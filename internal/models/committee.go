package models

// CommitteeType categorizes a committee for display. Protected types are seeded defaults.
type CommitteeType struct {
	ID          uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string `gorm:"size:100;uniqueIndex;not null" json:"name"`
	IsProtected bool   `gorm:"not null;default:false" json:"isProtected"`
}

// Committee is a node in the parent-pointer hierarchy ("udvalg").
type Committee struct {
	ID       uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	Name     string         `gorm:"size:100;not null" json:"name"`
	TypeID   uint           `gorm:"not null;index" json:"typeId"`
	Type     *CommitteeType `gorm:"foreignKey:TypeID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"type,omitempty"`
	ParentID *uint          `gorm:"index" json:"parentId"`
	Parent   *Committee     `gorm:"foreignKey:ParentID;constraint:OnDelete:SET NULL" json:"-"`
}

// TypeName returns the resolved type name, or an empty string when Type was not loaded.
func (c Committee) TypeName() string {
	if c.Type == nil {
		return ""
	}
	return c.Type.Name
}

// TableName overrides the table name for CommitteeType
func (CommitteeType) TableName() string {
	return "committee_type"
}

// TableName overrides the table name for Committee
func (Committee) TableName() string {
	return "committee"
}
