package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ejournal/adapters/lti"
	"ejournal/models"
)

func TestReconcile_UnknownUser(t *testing.T) {
	db := setupDB(t)
	reconciler := NewReconciler(db)

	out, err := reconciler.Reconcile(context.Background(), studentLaunch())
	require.NoError(t, err)

	// 不認識的外部身份不建立帳號，交給前端接手
	assert.Nil(t, out.User)
	assert.False(t, out.UsernameExists)

	var count int64
	require.NoError(t, db.Model(&models.User{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestReconcile_UnknownUser_UsernameTaken(t *testing.T) {
	db := setupDB(t)
	reconciler := NewReconciler(db)

	// 同名但不同外部身份的本地帳號已存在
	existing := models.User{Username: "student", FullName: "Someone Else"}
	require.NoError(t, db.Create(&existing).Error)

	out, err := reconciler.Reconcile(context.Background(), studentLaunch())
	require.NoError(t, err)
	assert.Nil(t, out.User)
	assert.True(t, out.UsernameExists)
}

func TestReconcile_UpdatesKnownUser(t *testing.T) {
	db := setupDB(t)
	reconciler := NewReconciler(db)
	createUser(t, db, "sub-student", "student", false)

	launch := studentLaunch()
	launch.User.FullName = "Ada King"

	out, err := reconciler.Reconcile(context.Background(), launch)
	require.NoError(t, err)
	require.NotNil(t, out.User)
	assert.Equal(t, "Ada King", out.User.FullName)
	require.NotNil(t, out.User.Email)
	assert.Equal(t, "ada@example.com", *out.User.Email)
	assert.NotNil(t, out.User.LastLogin)

	// 登入時間要能從資料庫讀回來，欄位型別不能綁死在特定driver上
	var reloaded models.User
	require.NoError(t, db.First(&reloaded, "id = ?", out.User.ID).Error)
	require.NotNil(t, reloaded.LastLogin)
	assert.WithinDuration(t, *out.User.LastLogin, *reloaded.LastLogin, time.Second)
}

func TestReconcile_StickyTeacher(t *testing.T) {
	db := setupDB(t)
	reconciler := NewReconciler(db)
	createUser(t, db, "sub-teacher", "teacher", false)
	course := createBoundCourse(t, db, "lms-course-1")

	out, err := reconciler.Reconcile(context.Background(), teacherLaunch())
	require.NoError(t, err)
	assert.True(t, out.User.IsTeacher)

	// 之後以較低角色launch不會清掉教師記號，但參與角色會跟著變
	launch := teacherLaunch()
	launch.User.Roles = []string{lti.RoleURIStudent}

	out, err = reconciler.Reconcile(context.Background(), launch)
	require.NoError(t, err)
	assert.True(t, out.User.IsTeacher)
	assert.Equal(t, lti.RoleStudent, out.Role)

	var participation models.Participation
	require.NoError(t, db.Where("user_id = ? AND course_id = ?", out.User.ID, course.ID).
		First(&participation).Error)
	assert.Equal(t, string(lti.RoleStudent), participation.Role)
}

func TestReconcile_CourseOneTimeBinding(t *testing.T) {
	db := setupDB(t)
	reconciler := NewReconciler(db)
	createUser(t, db, "sub-teacher", "teacher", true)

	// CRUD端先建好的課程，帶著LMS原生編號等待綁定
	course := models.Course{Name: "Compilers", LmsCourseID: lo.ToPtr("41")}
	require.NoError(t, db.Create(&course).Error)

	out, err := reconciler.Reconcile(context.Background(), teacherLaunch())
	require.NoError(t, err)
	require.NotNil(t, out.Course)
	assert.Equal(t, course.ID, out.Course.ID)
	require.NotNil(t, out.Course.ActiveLmsID)
	assert.Equal(t, "lms-course-1", *out.Course.ActiveLmsID)
	assert.True(t, out.NeedsRosterSync)

	// 綁定只發生一次，重放同一launch是冪等的
	out, err = reconciler.Reconcile(context.Background(), teacherLaunch())
	require.NoError(t, err)
	assert.False(t, out.NeedsRosterSync)

	var count int64
	require.NoError(t, db.Model(&models.Course{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestReconcile_CourseBindingConflict(t *testing.T) {
	db := setupDB(t)
	reconciler := NewReconciler(db)
	createUser(t, db, "sub-teacher", "teacher", true)

	// 同一個LMS原生編號已經綁到別的LMS課程識別碼
	course := models.Course{
		Name:        "Compilers",
		LmsCourseID: lo.ToPtr("41"),
		ActiveLmsID: lo.ToPtr("lms-course-other"),
	}
	require.NoError(t, db.Create(&course).Error)

	out, err := reconciler.Reconcile(context.Background(), teacherLaunch())
	require.Error(t, err)
	assert.Nil(t, out)

	var conflict *lti.ConflictError
	assert.ErrorAs(t, err, &conflict)
}

func TestReconcile_UnboundCourseIsNoCourse(t *testing.T) {
	db := setupDB(t)
	reconciler := NewReconciler(db)
	createUser(t, db, "sub-teacher", "teacher", true)

	out, err := reconciler.Reconcile(context.Background(), teacherLaunch())
	require.NoError(t, err)
	assert.NotNil(t, out.User)
	assert.Nil(t, out.Course)
	assert.Nil(t, out.Assignment)
}

func TestReconcile_TestStudentCreatedImmediately(t *testing.T) {
	db := setupDB(t)
	reconciler := NewReconciler(db)
	createBoundCourse(t, db, "lms-course-1")

	launch := studentLaunch()
	launch.User = lti.UserClaims{
		SubjectID:     "sub-test-student",
		Username:      "",
		FullName:      "Test Student",
		Roles:         []string{lti.RoleURIStudent},
		IsTestStudent: true,
	}

	out, err := reconciler.Reconcile(context.Background(), launch)
	require.NoError(t, err)
	require.NotNil(t, out.User)
	assert.True(t, out.User.IsTestStudent)
	// 沒有username時退回外部識別碼，密碼不可用
	assert.Equal(t, "sub-test-student", out.User.Username)
	assert.False(t, out.User.HasUsablePassword())
}

func TestReconcile_TestStudentExclusivity(t *testing.T) {
	db := setupDB(t)
	reconciler := NewReconciler(db)
	course := createBoundCourse(t, db, "lms-course-1")

	// 課程裡已有一個舊的測試學生
	stale := models.User{Username: "old-test-student", IsTestStudent: true, Lti13ID: lo.ToPtr("sub-old")}
	require.NoError(t, db.Create(&stale).Error)
	require.NoError(t, db.Create(&models.Participation{
		UserID:   stale.ID,
		CourseID: course.ID,
		Role:     string(lti.RoleStudent),
	}).Error)

	launch := studentLaunch()
	launch.User = lti.UserClaims{
		SubjectID:     "sub-new-test-student",
		Username:      "new-test-student",
		FullName:      "Test Student",
		Roles:         []string{lti.RoleURIStudent},
		IsTestStudent: true,
	}

	_, err := reconciler.Reconcile(context.Background(), launch)
	require.NoError(t, err)

	// LMS重建測試學生後，舊帳號被清掉
	var count int64
	require.NoError(t, db.Model(&models.User{}).
		Where("username = ?", "old-test-student").
		Count(&count).Error)
	assert.Zero(t, count)

	// 舊帳號的選課紀錄也要一起刪掉，不能留下孤兒資料
	require.NoError(t, db.Model(&models.Participation{}).
		Where("user_id = ?", stale.ID).
		Count(&count).Error)
	assert.Zero(t, count)
}

func TestReconcile_AssignmentDeadlinesOnlyExtend(t *testing.T) {
	db := setupDB(t)
	reconciler := NewReconciler(db)
	createUser(t, db, "sub-teacher", "teacher", true)
	course := createBoundCourse(t, db, "lms-course-1")
	assignment := createAssignment(t, db, course, "lms-assignment-1")

	preset := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, db.Create(&models.PresetNode{
		AssignmentID: assignment.ID,
		DueDate:      lo.ToPtr(preset),
	}).Error)

	// 比既有期限節點更早的due date不套用
	launch := teacherLaunch()
	launch.Assignment.Due = lo.ToPtr(preset.AddDate(0, 0, -7))

	out, err := reconciler.Reconcile(context.Background(), launch)
	require.NoError(t, err)
	require.NotNil(t, out.Assignment)
	assert.Nil(t, out.Assignment.DueDate)

	// 往後延就套用
	extended := preset.AddDate(0, 1, 0)
	launch = teacherLaunch()
	launch.Assignment.Due = lo.ToPtr(extended)

	out, err = reconciler.Reconcile(context.Background(), launch)
	require.NoError(t, err)
	require.NotNil(t, out.Assignment.DueDate)
	assert.True(t, extended.Equal(*out.Assignment.DueDate))
}

func TestReconcile_RefuseUnpublishWithEntries(t *testing.T) {
	db := setupDB(t)
	reconciler := NewReconciler(db)
	user := createUser(t, db, "sub-teacher", "teacher", true)
	course := createBoundCourse(t, db, "lms-course-1")
	assignment := createAssignment(t, db, course, "lms-assignment-1")

	journal := models.Journal{UserID: user.ID, AssignmentID: assignment.ID}
	require.NoError(t, db.Create(&journal).Error)
	require.NoError(t, db.Create(&models.Entry{JournalID: journal.ID}).Error)

	launch := teacherLaunch()
	launch.Assignment.Published = lo.ToPtr(false)

	out, err := reconciler.Reconcile(context.Background(), launch)
	require.NoError(t, err)
	// 已有已提交記錄，下架被拒絕
	assert.True(t, out.Assignment.IsPublished)
}

func TestReconcile_UnpublishWithoutEntries(t *testing.T) {
	db := setupDB(t)
	reconciler := NewReconciler(db)
	createUser(t, db, "sub-teacher", "teacher", true)
	course := createBoundCourse(t, db, "lms-course-1")
	createAssignment(t, db, course, "lms-assignment-1")

	launch := teacherLaunch()
	launch.Assignment.Published = lo.ToPtr(false)

	out, err := reconciler.Reconcile(context.Background(), launch)
	require.NoError(t, err)
	assert.False(t, out.Assignment.IsPublished)
}

func TestReconcile_Groups(t *testing.T) {
	db := setupDB(t)
	reconciler := NewReconciler(db)
	createUser(t, db, "sub-student", "student", false)
	course := createBoundCourse(t, db, "lms-course-1")

	launch := studentLaunch()
	launch.GroupIDs = []string{"11", "12"}

	out, err := reconciler.Reconcile(context.Background(), launch)
	require.NoError(t, err)

	// LMS沒提供名稱，以課程內的分組數量編出代稱
	var groups []models.Group
	require.NoError(t, db.Where("course_id = ?", course.ID).Order("name").Find(&groups).Error)
	require.Len(t, groups, 2)
	assert.Equal(t, "Group 1", groups[0].Name)
	assert.Equal(t, "Group 2", groups[1].Name)

	var memberships []models.Group
	require.NoError(t, db.Model(out.Participation).Association("Groups").Find(&memberships))
	assert.Len(t, memberships, 2)

	// 重放不會產生重複的分組或關聯
	_, err = reconciler.Reconcile(context.Background(), launch)
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&models.Group{}).Where("course_id = ?", course.ID).Count(&count).Error)
	assert.EqualValues(t, 2, count)
}

func TestReconcile_GroupNumberingSkipsNothing(t *testing.T) {
	db := setupDB(t)
	reconciler := NewReconciler(db)
	createUser(t, db, "sub-student", "student", false)
	course := createBoundCourse(t, db, "lms-course-1")

	// 課程裡已有一個對應launch分組的既有分組
	require.NoError(t, db.Create(&models.Group{
		Name:     "Group 1",
		LmsID:    "11",
		CourseID: course.ID,
	}).Error)

	launch := studentLaunch()
	launch.GroupIDs = []string{"11", "12"}

	_, err := reconciler.Reconcile(context.Background(), launch)
	require.NoError(t, err)

	// 編號只算新建的分組，不會因為既有分組排在前面而跳號
	var group models.Group
	require.NoError(t, db.Where("course_id = ? AND lms_id = ?", course.ID, "12").First(&group).Error)
	assert.Equal(t, "Group 2", group.Name)
}

func TestReconcile_PassbackCoordinates(t *testing.T) {
	db := setupDB(t)
	reconciler := NewReconciler(db)

	user := models.User{Username: "student", FullName: "Ada", Lti10ID: lo.ToPtr("legacy-sub")}
	require.NoError(t, db.Create(&user).Error)
	course := createBoundCourse(t, db, "lms-course-1")
	assignment := createAssignment(t, db, course, "lms-assignment-1")

	journal := models.Journal{UserID: user.ID, AssignmentID: assignment.ID}
	require.NoError(t, db.Create(&journal).Error)

	launch := studentLaunch()
	launch.Version = lti.Version10
	launch.User.SubjectID = "legacy-sub"
	launch.GradePassback = lti.GradePassbackClaims{
		OutcomeURL: "https://lms.example.com/outcomes",
		Sourcedid:  "sourcedid-1",
	}

	out, err := reconciler.Reconcile(context.Background(), launch)
	require.NoError(t, err)

	// 座標第一次寫入且已有日誌，要求重送成績
	require.NotNil(t, out.Journal)
	assert.True(t, out.PassbackChanged)
	require.NotNil(t, out.Participation.GradeURL)
	assert.Equal(t, "https://lms.example.com/outcomes", *out.Participation.GradeURL)

	// 座標沒變就不再重送
	out, err = reconciler.Reconcile(context.Background(), launch)
	require.NoError(t, err)
	assert.False(t, out.PassbackChanged)
}

func TestReconcile_PassbackChangeWithoutJournal(t *testing.T) {
	db := setupDB(t)
	reconciler := NewReconciler(db)

	user := models.User{Username: "student", FullName: "Ada", Lti10ID: lo.ToPtr("legacy-sub")}
	require.NoError(t, db.Create(&user).Error)
	course := createBoundCourse(t, db, "lms-course-1")
	createAssignment(t, db, course, "lms-assignment-1")

	launch := studentLaunch()
	launch.Version = lti.Version10
	launch.User.SubjectID = "legacy-sub"
	launch.GradePassback = lti.GradePassbackClaims{
		OutcomeURL: "https://lms.example.com/outcomes",
		Sourcedid:  "sourcedid-1",
	}

	out, err := reconciler.Reconcile(context.Background(), launch)
	require.NoError(t, err)

	// 座標寫入了，但還沒有日誌可回傳
	assert.Nil(t, out.Journal)
	assert.False(t, out.PassbackChanged)
	assert.NotNil(t, out.Participation.GradeURL)
}
