package model

import (
	"strings"
	"testing"
)

// validRequest returns a ChannelRequest that passes all validation rules.
func validRequest() ChannelRequest {
	return ChannelRequest{
		ChannelName:  "acme-support",
		InviteeID:    "U0INVITEE",
		Organization: "Acme",
		ExpireDays:   "14",
		Purpose:      "Escalations",
	}
}

// fieldErrors extracts a *ValidationError from err or fails the test.
func fieldErrors(t *testing.T, err error) []FieldError {
	t.Helper()
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	ve, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	return ve.Errors
}

// hasFieldError reports whether the error list contains an error for the given field.
func hasFieldError(errs []FieldError, field string) bool {
	for _, fe := range errs {
		if fe.Field == field {
			return true
		}
	}
	return false
}

func TestValidateChannelRequest_Valid(t *testing.T) {
	r := validRequest()
	if err := ValidateChannelRequest(&r, "U0REQUESTER"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Days() != 14 {
		t.Errorf("Days() = %d, want 14", r.Days())
	}
}

func TestValidateChannelRequest_SelfInvite(t *testing.T) {
	r := validRequest()
	errs := fieldErrors(t, ValidateChannelRequest(&r, r.InviteeID))
	if !hasFieldError(errs, FieldInvitee) {
		t.Errorf("expected invitee error, got %v", errs)
	}
}

func TestValidateChannelRequest_ChannelName(t *testing.T) {
	for _, tc := range []struct {
		name    string
		wantErr bool
	}{
		{"a", false},
		{"acme_support-2", false},
		{strings.Repeat("x", 21), false},
		{strings.Repeat("x", 22), true},
		{"", true},
		{"Acme", true},
		{"acme support", true},
		{"acme.support", true},
	} {
		r := validRequest()
		r.ChannelName = tc.name
		err := ValidateChannelRequest(&r, "U0REQUESTER")
		if tc.wantErr {
			if !hasFieldError(fieldErrors(t, err), FieldChannelName) {
				t.Errorf("%q: expected channel_name error", tc.name)
			}
		} else if err != nil {
			t.Errorf("%q: unexpected error: %v", tc.name, err)
		}
	}
}

func TestValidateChannelRequest_ExpireDays(t *testing.T) {
	for _, tc := range []struct {
		days    string
		wantErr bool
	}{
		{"1", false},
		{"365", false},
		{"0", true},
		{"-3", true},
		{"07", true},
		{"1.5", true},
		{"", true},
		{"99999999999999999999999", true},
		{"36501", true},
		{"36500", false},
	} {
		r := validRequest()
		r.ExpireDays = tc.days
		err := ValidateChannelRequest(&r, "U0REQUESTER")
		if tc.wantErr {
			if !hasFieldError(fieldErrors(t, err), FieldExpireDays) {
				t.Errorf("%q: expected expire_days error", tc.days)
			}
		} else if err != nil {
			t.Errorf("%q: unexpected error: %v", tc.days, err)
		}
	}
}

func TestValidateChannelRequest_CollectsAllErrors(t *testing.T) {
	r := ChannelRequest{ChannelName: "Bad Name", InviteeID: "U1", ExpireDays: "zero"}
	errs := fieldErrors(t, ValidateChannelRequest(&r, "U1"))
	if len(errs) != 3 {
		t.Fatalf("got %d errors, want 3: %v", len(errs), errs)
	}
	for _, f := range []string{FieldInvitee, FieldChannelName, FieldExpireDays} {
		if !hasFieldError(errs, f) {
			t.Errorf("missing error for %s", f)
		}
	}
}

func TestChannelRequest_Normalize(t *testing.T) {
	r := ChannelRequest{ChannelName: "  Acme-Support ", ExpireDays: " 7 ", Organization: " Acme "}
	r.Normalize()
	if r.ChannelName != "acme-support" {
		t.Errorf("ChannelName = %q", r.ChannelName)
	}
	if r.ExpireDays != "7" || r.Organization != "Acme" {
		t.Errorf("got %+v", r)
	}
}

func TestValidationError_Error(t *testing.T) {
	ve := &ValidationError{}
	ve.Add("a", "bad")
	ve.Add("b", "worse")
	if got, want := ve.Error(), "validation failed: a: bad; b: worse"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
