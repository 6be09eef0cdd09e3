package lti

import (
	"log/slog"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want *time.Time
	}{
		{
			name: "rfc3339",
			raw:  "2026-03-01T10:00:00Z",
			want: lo.ToPtr(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)),
		},
		{
			name: "datetime without zone",
			raw:  "2026-03-01T10:00:00",
			want: lo.ToPtr(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)),
		},
		{
			name: "date only",
			raw:  "2026-03-01",
			want: lo.ToPtr(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)),
		},
		{
			name: "surrounding whitespace",
			raw:  " 2026-03-01 ",
			want: lo.ToPtr(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)),
		},
		{name: "empty", raw: "", want: nil},
		{name: "garbage", raw: "next tuesday", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseDate(tt.raw)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.True(t, tt.want.Equal(*got))
		})
	}
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, SplitList("a,b,c"))
	assert.Equal(t, []string{"a", "b"}, SplitList(" a , , b ,"))
	assert.Nil(t, SplitList(""))
}

func TestParsePoints(t *testing.T) {
	assert.Equal(t, lo.ToPtr(10.0), ParsePoints("10"))
	assert.Equal(t, lo.ToPtr(7.5), ParsePoints(" 7.5 "))
	assert.Nil(t, ParsePoints(""))
	assert.Nil(t, ParsePoints("ten"))
}

func TestParseBool(t *testing.T) {
	assert.Equal(t, lo.ToPtr(true), ParseBool("true"))
	assert.Equal(t, lo.ToPtr(true), ParseBool("1"))
	assert.Equal(t, lo.ToPtr(false), ParseBool("False"))
	assert.Equal(t, lo.ToPtr(false), ParseBool("0"))
	assert.Nil(t, ParseBool(""))
	assert.Nil(t, ParseBool("maybe"))
}

func TestNormalizeProfilePicture(t *testing.T) {
	assert.Equal(t, "", NormalizeProfilePicture(""))
	assert.Equal(t, "", NormalizeProfilePicture("https://lms.example.com/images/messages/avatar-50.png"))
	assert.Equal(t,
		"https://lms.example.com/files/42/profile.jpg",
		NormalizeProfilePicture("https://lms.example.com/files/42/profile.jpg"),
	)
}

func TestDetectTestStudent(t *testing.T) {
	tests := []struct {
		name     string
		fullName string
		email    string
		want     bool
	}{
		{name: "regular user with email", fullName: "Ada Lovelace", email: "ada@example.com", want: false},
		{name: "known test student name without email", fullName: "Test Student", email: "", want: true},
		{name: "case insensitive match", fullName: "test student", email: "", want: true},
		{name: "unknown name without email still test student", fullName: "Totally Real", email: "", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectTestStudent(slog.Default(), tt.fullName, tt.email))
		})
	}
}
