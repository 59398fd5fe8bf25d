package auth

import (
	"errors"
	"testing"
	"time"
)

const secret = "jwt-test-secret"

func TestCreateAndParse(t *testing.T) {
	token, err := CreateToken("user-1", secret, time.Hour)
	if err != nil {
		t.Fatalf("CreateToken: %v", err)
	}

	sub, err := ParseSubject(token, secret)
	if err != nil {
		t.Fatalf("ParseSubject: %v", err)
	}
	if sub != "user-1" {
		t.Errorf("subject = %q, want user-1", sub)
	}
}

func TestParseRejections(t *testing.T) {
	valid, err := CreateToken("user-1", secret, time.Hour)
	if err != nil {
		t.Fatalf("CreateToken: %v", err)
	}
	expired, err := CreateToken("user-1", secret, -time.Minute)
	if err != nil {
		t.Fatalf("CreateToken: %v", err)
	}
	noSubject, err := CreateToken("", secret, time.Hour)
	if err != nil {
		t.Fatalf("CreateToken: %v", err)
	}

	cases := []struct {
		name   string
		token  string
		secret string
	}{
		{"empty", "", secret},
		{"garbage", "not.a.jwt", secret},
		{"wrong secret", valid, "other-secret"},
		{"expired", expired, secret},
		{"missing subject", noSubject, secret},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseSubject(tc.token, tc.secret); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("err = %v, want ErrInvalidToken", err)
			}
		})
	}
}
