// auth.go
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

package helpers

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"testing"

	"github.com/authorizerdev/authorizer-go"
)

func randInt(max int) int {
	n, _ := rand.Int(rand.Reader, big.NewInt(int64(max)))
	return int(n.Int64())
}

// GeneratePassword generates a 10 character password with a capital and special char
func GeneratePassword() string {
	const (
		lower   = "abcdefghijklmnopqrstuvwxyz"
		upper   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
		special = "!@#$%^&*"
		numbers = "0123456789"
		all     = lower + upper + special + numbers
	)

	password := make([]byte, 10)
	password[0] = upper[randInt(len(upper))]
	password[1] = special[randInt(len(special))]
	password[2] = numbers[randInt(len(numbers))]

	for i := 3; i < 10; i++ {
		password[i] = all[randInt(len(all))]
	}

	for i := range password {
		j := randInt(len(password))
		password[i], password[j] = password[j], password[i]
	}

	return string(password)
}

// Editor roles granted by AcquireEditor.
var EditorRoles = []string{"edit_member", "edit_udvalg"}

// AcquireAccount signs up (or reuses) an Authorizer account holding roles and logs in.
// It returns the access token. t may be nil when called from a command.
func AcquireAccount(t *testing.T, authzURL, clientID, email, password string, roles []string) string {
	client, err := authorizer.NewAuthorizerClient(clientID, authzURL, "", nil)
	if err != nil {
		exitWithError(t, err, "Failed to create authorizer client")
		return ""
	}

	rolesPtrs := make([]*string, len(roles))
	for i := range roles {
		rolesPtrs[i] = &roles[i]
	}

	_, err = client.SignUp(&authorizer.SignUpInput{
		Email:           &email,
		Password:        password,
		ConfirmPassword: password,
		Roles:           rolesPtrs,
	})
	if err != nil {
		logMessage(t, "Signup failed (might already exist): %v", err)
	}

	res, err := client.Login(&authorizer.LoginInput{
		Email:    &email,
		Password: password,
	})
	if err != nil {
		exitWithError(t, err, "Login failed")
		return ""
	}
	if res.AccessToken == nil {
		exitWithError(t, fmt.Errorf("no access token for %s", email), "Login failed")
		return ""
	}

	return *res.AccessToken
}

// AcquireEditor creates an account holding both edit roles.
func AcquireEditor(t *testing.T, tc *TestContainers, email string) (password, token string) {
	password = GeneratePassword()
	token = AcquireAccount(t, tc.AuthzURL, tc.AuthzClientID, email, password, EditorRoles)
	return password, token
}
