// delta.go
//
// MED-Database committee and member registry service
// Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC
//
// This file is part of meddb.
// meddb is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published by the Free Software
// Foundation, either version 3 of the License, or (at your option) any later version.
// meddb is distributed in the hope that it will be useful, but WITHOUT ANY WARRANTY;
// without even the implied warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
// See the GNU Affero General Public License for more details.
// You should have received a copy of the GNU Affero General Public License along with meddb.
// If not, see <https://www.gnu.org/licenses/>.
// Additional terms under GNU AGPL version 3 section 7:
// a) The reasonable legal notice of original copyright and author attribution must be preserved
//    by including the string: "Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC"
//    in this material, copies, or source code of derived works.

package directory

import (
	"context"
	"encoding/json"
	"time"
)

const (
	deltaEngagementRelation = "APOS-Types-Engagement-TypeRelation-Person"
	deltaUserRelation       = "APOS-Types-User-TypeRelation-Person"
	deltaEmailAttribute     = "APOS-Types-Engagement-Attribute-Email"
	deltaAdmUnitRelation    = "APOS-Types-Engagement-TypeRelation-AdmUnit"
	deltaActiveState        = "STATE_ACTIVE"
)

// deltaStructure joins person, user account, engagement and administrative unit.
var deltaStructure = json.RawMessage(`{
	"alias": "person",
	"userKey": "APOS-Types-Person",
	"relations": [
		{"alias": "user", "userKey": "APOS-Types-User-TypeRelation-Person", "typeUserKey": "APOS-Types-User", "direction": "IN"},
		{
			"alias": "emp",
			"userKey": "APOS-Types-Engagement-TypeRelation-Person",
			"typeUserKey": "APOS-Types-Engagement",
			"direction": "IN",
			"attributes": [{"alias": "email", "userKey": "APOS-Types-Engagement-Attribute-Email"}],
			"relations": [
				{"alias": "adm", "userKey": "APOS-Types-Engagement-TypeRelation-AdmUnit", "typeUserKey": "APOS-Types-AdmUnit", "direction": "OUT"}
			]
		}
	]
}`)

var deltaProjection = json.RawMessage(`{
	"identity": true,
	"state": true,
	"incomingTypeRelations": [
		{"userKey": "APOS-Types-User-TypeRelation-Engagement", "projection": {"identity": true}},
		{"userKey": "APOS-Types-User-TypeRelation-Person", "projection": {"identity": true}},
		{
			"userKey": "APOS-Types-Engagement-TypeRelation-Person",
			"projection": {
				"identity": true,
				"state": true,
				"attributes": ["APOS-Types-Engagement-Attribute-Email"],
				"typeRelations": [{"userKey": "APOS-Types-Engagement-TypeRelation-AdmUnit", "projection": {"identity": true}}]
			}
		}
	]
}`)

type deltaOperand struct {
	Source string `json:"source"`
	Alias  string `json:"alias,omitempty"`
	Value  string `json:"value,omitempty"`
}

type deltaCriterion struct {
	Type     string       `json:"type"`
	Operator string       `json:"operator,omitempty"`
	Left     deltaOperand `json:"left"`
	Right    deltaOperand `json:"right"`
}

type deltaCriteria struct {
	Type     string           `json:"type"`
	Criteria []deltaCriterion `json:"criteria"`
}

type deltaGraphQuery struct {
	Structure  json.RawMessage `json:"structure"`
	Criteria   deltaCriteria   `json:"criteria"`
	Projection json.RawMessage `json:"projection"`
}

type deltaQueryEntry struct {
	ComputeAvailablePages bool            `json:"computeAvailablePages"`
	GraphQuery            deltaGraphQuery `json:"graphQuery"`
	ValidDate             string          `json:"validDate"`
	Limit                 int             `json:"limit"`
}

type deltaRequest struct {
	GraphQueries []deltaQueryEntry `json:"graphQueries"`
}

type deltaIdentity struct {
	Name    string `json:"name"`
	UserKey string `json:"userKey"`
}

type deltaAttribute struct {
	UserKey string `json:"userKey"`
	Value   string `json:"value"`
}

type deltaObject struct {
	Identity   deltaIdentity    `json:"identity"`
	State      string           `json:"state"`
	Attributes []deltaAttribute `json:"attributes"`
	TypeRefs   []deltaRef       `json:"typeRefs"`
}

type deltaRef struct {
	UserKey      string      `json:"userKey"`
	TargetObject deltaObject `json:"targetObject"`
}

type deltaInstance struct {
	Identity   deltaIdentity `json:"identity"`
	InTypeRefs []deltaRef    `json:"inTypeRefs"`
}

type deltaResponse struct {
	GraphQueryResult []struct {
		Instances []deltaInstance `json:"instances"`
	} `json:"graphQueryResult"`
}

// Delta searches the primary HR/identity directory through its graph-query API.
type Delta struct {
	api *APIClient
}

// DeltaConfig configures NewDelta.
type DeltaConfig struct {
	URL          string
	AuthURL      string
	Realm        string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

// NewDelta creates a Delta client authenticating with client credentials against the realm.
func NewDelta(cfg DeltaConfig) (*Delta, error) {
	api, err := NewAPIClient("delta", cfg.URL, Auth{
		AuthURL:      cfg.AuthURL,
		Realm:        cfg.Realm,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
	}, cfg.Timeout)
	if err != nil {
		return nil, err
	}
	return &Delta{api: api}, nil
}

// Search matches name and e-mail by substring and username exactly. All given criteria must hold.
// Persons without an active engagement carrying both e-mail and unit are skipped.
func (d *Delta) Search(ctx context.Context, q Query) ([]PersonRecord, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	var resp deltaResponse
	if err := d.api.Do(ctx, Request{Path: "api/object/graph-query", Body: deltaSearchRequest(q)}, &resp); err != nil {
		return nil, err
	}
	if len(resp.GraphQueryResult) == 0 {
		return nil, nil
	}

	var records []PersonRecord
	for _, inst := range resp.GraphQueryResult[0].Instances {
		if record, ok := deltaRecord(inst); ok {
			records = append(records, record)
		}
	}
	return records, nil
}

func deltaSearchRequest(q Query) deltaRequest {
	definition := func(alias string) deltaOperand { return deltaOperand{Source: "DEFINITION", Alias: alias} }
	static := func(value string) deltaOperand { return deltaOperand{Source: "STATIC", Value: value} }

	var criteria []deltaCriterion
	if q.Name != "" {
		criteria = append(criteria, deltaCriterion{Type: "MATCH", Operator: "LIKE", Left: definition("person.$name"), Right: static("%" + q.Name + "%")})
	}
	if q.Email != "" {
		criteria = append(criteria, deltaCriterion{Type: "MATCH", Operator: "LIKE", Left: definition("person.emp.email"), Right: static("%" + q.Email + "%")})
	}
	if q.Username != "" {
		criteria = append(criteria, deltaCriterion{Type: "MATCH", Operator: "EQUAL", Left: definition("person.user.$userKey"), Right: static(q.Username)})
	}

	return deltaRequest{GraphQueries: []deltaQueryEntry{{
		ComputeAvailablePages: true,
		GraphQuery: deltaGraphQuery{
			Structure:  deltaStructure,
			Criteria:   deltaCriteria{Type: "AND", Criteria: criteria},
			Projection: deltaProjection,
		},
		ValidDate: "NOW",
		Limit:     SearchLimit,
	}}}
}

func deltaRecord(inst deltaInstance) (PersonRecord, bool) {
	var email, unit, username string
	for _, ref := range inst.InTypeRefs {
		switch ref.UserKey {
		case deltaEngagementRelation:
			target := ref.TargetObject
			if target.State != deltaActiveState {
				continue
			}
			for _, attr := range target.Attributes {
				if attr.UserKey == deltaEmailAttribute {
					email = attr.Value
				}
			}
			for _, tref := range target.TypeRefs {
				if tref.UserKey == deltaAdmUnitRelation {
					unit = tref.TargetObject.Identity.Name
				}
			}
		case deltaUserRelation:
			username = ref.TargetObject.Identity.UserKey
		}
	}
	if email == "" || unit == "" {
		return PersonRecord{}, false
	}
	return newRecord(inst.Identity.Name, email, unit, username), true
}
