package lti

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapRoles(t *testing.T) {
	tests := []struct {
		name           string
		roles          []string
		want           Role
		wantRecognized bool
	}{
		{
			name:           "lti13 instructor uri",
			roles:          []string{RoleURITeacher},
			want:           RoleTeacher,
			wantRecognized: true,
		},
		{
			name:           "lti13 learner uri",
			roles:          []string{RoleURIStudent},
			want:           RoleStudent,
			wantRecognized: true,
		},
		{
			name:           "lti13 teaching assistant uri",
			roles:          []string{RoleURITA},
			want:           RoleTA,
			wantRecognized: true,
		},
		{
			name:           "institution admin counts as teacher",
			roles:          []string{RoleURIAdminInst},
			want:           RoleTeacher,
			wantRecognized: true,
		},
		{
			name:           "legacy urn instructor",
			roles:          []string{"urn:lti:role:ims/lis/Instructor"},
			want:           RoleTeacher,
			wantRecognized: true,
		},
		{
			name:           "legacy plain learner",
			roles:          []string{"Learner"},
			want:           RoleStudent,
			wantRecognized: true,
		},
		{
			name:           "teacher wins over learner",
			roles:          []string{RoleURIStudent, RoleURITeacher},
			want:           RoleTeacher,
			wantRecognized: true,
		},
		{
			name:           "ta wins over learner",
			roles:          []string{"Learner", "urn:lti:role:ims/lis/TeachingAssistant"},
			want:           RoleTA,
			wantRecognized: true,
		},
		{
			name:           "unrecognized roles default to student",
			roles:          []string{"urn:lti:sysrole:ims/lis/Mentor"},
			want:           RoleStudent,
			wantRecognized: false,
		},
		{
			name:           "empty roles default to student",
			roles:          nil,
			want:           RoleStudent,
			wantRecognized: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, recognized := MapRoles(tt.roles)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantRecognized, recognized)
		})
	}
}

func TestIsTeacherLaunch(t *testing.T) {
	assert.True(t, IsTeacherLaunch([]string{RoleURITeacher}))
	assert.False(t, IsTeacherLaunch([]string{RoleURIStudent}))
	assert.False(t, IsTeacherLaunch(nil))
}

func TestSplitLegacyRoles(t *testing.T) {
	assert.Equal(t,
		[]string{"urn:lti:role:ims/lis/Instructor", "urn:lti:role:ims/lis/Learner"},
		SplitLegacyRoles("urn:lti:role:ims/lis/Instructor, urn:lti:role:ims/lis/Learner"),
	)
	assert.Nil(t, SplitLegacyRoles(""))
}
