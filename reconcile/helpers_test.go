package reconcile

import (
	"testing"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"ejournal/adapters/lti"
	"ejournal/models"
)

// setupDB 建立一個乾淨的in-memory資料庫
// sqlite的in-memory資料庫跟著連線走，連線數必須鎖在1
func setupDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Course{},
		&models.Assignment{},
		&models.PresetNode{},
		&models.Group{},
		&models.Participation{},
		&models.Journal{},
		&models.Entry{},
	))
	return db
}

// teacherLaunch 組出一個齊全的LTI 1.3教師launch
func teacherLaunch() *lti.LaunchContext {
	return &lti.LaunchContext{
		Version:  lti.Version13,
		LaunchID: uuid.NewString(),
		User: lti.UserClaims{
			SubjectID: "sub-teacher",
			Username:  "teacher",
			FullName:  "Grace Hopper",
			Email:     "grace@example.com",
			Roles:     []string{lti.RoleURITeacher},
		},
		Course: lti.CourseClaims{
			LmsID: "lms-course-1",
			SisID: "41",
			Title: "Compilers",
		},
		Assignment: lti.AssignmentClaims{
			LmsID: "lms-assignment-1",
			Title: "Logbook",
		},
	}
}

// studentLaunch 組出一個齊全的LTI 1.3學生launch
func studentLaunch() *lti.LaunchContext {
	launch := teacherLaunch()
	launch.User = lti.UserClaims{
		SubjectID: "sub-student",
		Username:  "student",
		FullName:  "Ada Lovelace",
		Email:     "ada@example.com",
		Roles:     []string{lti.RoleURIStudent},
	}
	return launch
}

func createUser(t *testing.T, db *gorm.DB, subjectID, username string, isTeacher bool) *models.User {
	t.Helper()
	user := models.User{
		Username:  username,
		FullName:  username,
		Lti13ID:   lo.ToPtr(subjectID),
		IsTeacher: isTeacher,
	}
	require.NoError(t, db.Create(&user).Error)
	return &user
}

func createBoundCourse(t *testing.T, db *gorm.DB, lmsID string) *models.Course {
	t.Helper()
	course := models.Course{
		Name:        "Compilers",
		ActiveLmsID: lo.ToPtr(lmsID),
	}
	require.NoError(t, db.Create(&course).Error)
	return &course
}

func createAssignment(t *testing.T, db *gorm.DB, course *models.Course, lmsID string) *models.Assignment {
	t.Helper()
	assignment := models.Assignment{
		Name:           "Logbook",
		ActiveLmsID:    lo.ToPtr(lmsID),
		PointsPossible: 10,
		IsPublished:    true,
		CourseID:       course.ID,
	}
	require.NoError(t, db.Create(&assignment).Error)
	return &assignment
}
