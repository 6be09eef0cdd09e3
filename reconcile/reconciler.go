// Package reconcile 把一次 launch 的外部身份對齊到本地實體：
// 使用者、課程、作業、參與關係與分組，再由 resolver 決定前端的入口狀態
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/samber/lo"
	"gorm.io/gorm"

	"ejournal/adapters/lti"
	"ejournal/models"
)

// Outcome 是一次 reconcile 的結果，resolver 據此決定 launch 狀態
// User 為 nil 代表外部身份還沒連上本地帳號(NoUser)，Course/Assignment
// 為 nil 代表對應實體尚未建立
type Outcome struct {
	Launch *lti.LaunchContext
	Role   lti.Role

	User           *models.User
	Course         *models.Course
	Assignment     *models.Assignment
	Participation  *models.Participation
	Journal        *models.Journal
	UsernameExists bool

	// NeedsRosterSync 代表這次 launch 完成了課程的一次性綁定，
	// 呼叫端應同步執行第一次名冊同步
	NeedsRosterSync bool

	// PassbackChanged 代表成績回傳座標有變動，且已有日誌存在，
	// 呼叫端應排入一筆成績回傳任務
	PassbackChanged bool
}

type reconcilerOptions struct {
	logger    *slog.Logger
	sanitizer *bluemonday.Policy
}

type ReconcilerOption func(*reconcilerOptions)

// WithReconcilerLogger 設置日誌記錄器
func WithReconcilerLogger(logger *slog.Logger) ReconcilerOption {
	return func(o *reconcilerOptions) {
		o.logger = logger
	}
}

// Reconciler 實作身份對齊的狀態機
// 四個步驟單調前進：使用者、課程、作業、參與關係，
// 步驟二之後全部在同一個交易內，出錯就整批回滾
type Reconciler struct {
	db        *gorm.DB
	logger    *slog.Logger
	sanitizer *bluemonday.Policy
}

// NewReconciler 建立 reconciler
func NewReconciler(db *gorm.DB, opts ...ReconcilerOption) *Reconciler {
	options := reconcilerOptions{
		logger:    slog.Default(),
		sanitizer: bluemonday.UGCPolicy(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	return &Reconciler{
		db:        db,
		logger:    options.logger.With(slog.String("caller", "reconcile.Reconciler")),
		sanitizer: options.sanitizer,
	}
}

// Reconcile 把 LaunchContext 對齊到本地實體
// 協定驗證已在 adapter 完成，這裡只信任正規化後的 claim。
// 重放相同的 launch 不會產生重複資料列，只會更新 last-login 一類的單調欄位
func (r *Reconciler) Reconcile(ctx context.Context, launch *lti.LaunchContext) (*Outcome, error) {
	const op = "Reconciler.Reconcile"

	role, recognized := lti.MapRoles(launch.User.Roles)
	if !recognized && len(launch.User.Roles) > 0 {
		r.logger.Warn("Unrecognized LTI roles encountered",
			slog.String("subjectId", launch.User.SubjectID),
			slog.Any("roles", launch.User.Roles),
		)
	}

	out := &Outcome{Launch: launch, Role: role}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.reconcileUser(tx, launch, role, out); err != nil {
			return err
		}
		if out.User == nil {
			return nil
		}
		if err := r.reconcileCourse(tx, launch, out); err != nil {
			return err
		}
		if out.Course == nil {
			return nil
		}
		if err := r.enforceTestStudentExclusivity(tx, out); err != nil {
			return err
		}
		if err := r.reconcileParticipation(tx, launch, role, out); err != nil {
			return err
		}
		if err := r.reconcileAssignment(tx, launch, out); err != nil {
			return err
		}
		if out.Assignment == nil {
			return nil
		}
		return r.reconcileJournal(tx, launch, out)
	})
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to reconcile launch, err=%w", op, err)
	}
	return out, nil
}

// identityColumn 回傳該協定版本的外部身份欄位
func identityColumn(version lti.Version) string {
	if version == lti.Version10 {
		return "lti10_id"
	}
	return "lti13_id"
}

// reconcileUser 是第一步：以外部身份找本地使用者
// 找不到時不建立帳號(NoUser 由前端接手)，測試學生例外，
// 因為測試學生沒有註冊流程，必須當場建立
func (r *Reconciler) reconcileUser(tx *gorm.DB, launch *lti.LaunchContext, role lti.Role, out *Outcome) error {
	column := identityColumn(launch.Version)

	var user models.User
	err := tx.Where(column+" = ?", launch.User.SubjectID).First(&user).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if !launch.User.IsTestStudent {
			var count int64
			if err := tx.Model(&models.User{}).
				Where("username = ?", launch.User.Username).
				Count(&count).Error; err != nil {
				return fmt.Errorf("failed to check username availability: %w", err)
			}
			out.UsernameExists = count > 0
			return nil
		}
		created, err := r.createTestStudent(tx, launch)
		if err != nil {
			return err
		}
		out.User = created
		return nil
	case err != nil:
		return fmt.Errorf("failed to find user by external identity: %w", err)
	}

	// 可變欄位跟著 launch 走；頭像是平台預設圖時保留本地設定
	if launch.User.Username != "" {
		user.Username = launch.User.Username
	}
	if launch.User.FullName != "" {
		user.FullName = launch.User.FullName
	}
	if launch.User.Email != "" {
		user.Email = lo.ToPtr(launch.User.Email)
	}
	if picture := lti.NormalizeProfilePicture(launch.User.ProfilePicture); picture != "" {
		user.ProfilePicture = picture
	}
	// 教師身份是黏性的：一旦為 true，之後角色較低的 launch 不會清掉它
	if role == lti.RoleTeacher {
		user.IsTeacher = true
	}
	user.LastLogin = lo.ToPtr(time.Now())

	if err := tx.Save(&user).Error; err != nil {
		return fmt.Errorf("failed to update user from launch: %w", err)
	}
	out.User = &user
	return nil
}

func (r *Reconciler) createTestStudent(tx *gorm.DB, launch *lti.LaunchContext) (*models.User, error) {
	username := launch.User.Username
	if username == "" {
		username = launch.User.SubjectID
	}

	user := models.User{
		Username:       username,
		FullName:       launch.User.FullName,
		ProfilePicture: lti.NormalizeProfilePicture(launch.User.ProfilePicture),
		IsTestStudent:  true,
		// 測試學生沒有可用密碼，不能走一般登入
		PasswordHash: "",
		LastLogin:    lo.ToPtr(time.Now()),
	}
	subject := lo.ToPtr(launch.User.SubjectID)
	if launch.Version == lti.Version10 {
		user.Lti10ID = subject
	} else {
		user.Lti13ID = subject
	}

	if err := tx.Create(&user).Error; err != nil {
		return nil, fmt.Errorf("failed to create test student: %w", err)
	}
	return &user, nil
}

// enforceTestStudentExclusivity 保證每個課程最多一個測試學生
// LMS 重建測試學生時會換一個外部身份，舊帳號要跟著刪掉
func (r *Reconciler) enforceTestStudentExclusivity(tx *gorm.DB, out *Outcome) error {
	if !out.User.IsTestStudent {
		return nil
	}

	var staleIDs []uuid.UUID
	if err := tx.Model(&models.User{}).
		Select("users.id").
		Joins("JOIN participations ON participations.user_id = users.id AND participations.deleted_at IS NULL").
		Where("participations.course_id = ?", out.Course.ID).
		Where("users.is_test_student = ?", true).
		Where("users.id <> ?", out.User.ID).
		Scan(&staleIDs).Error; err != nil {
		return fmt.Errorf("failed to find stale test students: %w", err)
	}
	if len(staleIDs) == 0 {
		return nil
	}

	// 連同選課紀錄一起刪除，否則名冊上會留下指向已刪帳號的孤兒資料
	if err := tx.Where("user_id IN ?", staleIDs).Delete(&models.Participation{}).Error; err != nil {
		return fmt.Errorf("failed to remove stale test student participations: %w", err)
	}
	if err := tx.Where("id IN ?", staleIDs).Delete(&models.User{}).Error; err != nil {
		return fmt.Errorf("failed to remove stale test students: %w", err)
	}
	return nil
}

// reconcileCourse 是第二步：以 active_lms_id 找課程
// 找不到時再用 LMS 原生課程編號找 CRUD 端先建好的課程做一次性綁定；
// 已綁定到別的識別碼就是設定衝突，不屬於正常的 launch 狀態
func (r *Reconciler) reconcileCourse(tx *gorm.DB, launch *lti.LaunchContext, out *Outcome) error {
	if launch.Course.LmsID == "" {
		return nil
	}

	var course models.Course
	err := tx.Where("active_lms_id = ?", launch.Course.LmsID).First(&course).Error
	switch {
	case err == nil:
		r.applyCourseClaims(&course, launch)
		if err := tx.Save(&course).Error; err != nil {
			return fmt.Errorf("failed to update course from launch: %w", err)
		}
		out.Course = &course
		return nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("failed to find course by active lms id: %w", err)
	}

	secondary := launch.Course.SisID
	if secondary == "" {
		secondary = launch.Course.LmsID
	}
	err = tx.Where("lms_course_id = ?", secondary).First(&course).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil
	case err != nil:
		return fmt.Errorf("failed to find course by lms course id: %w", err)
	}

	if course.ActiveLmsID != nil {
		// 第一個查詢沒中，代表綁定的識別碼一定不同
		return &lti.ConflictError{
			Entity:    "course",
			Bound:     *course.ActiveLmsID,
			Requested: launch.Course.LmsID,
		}
	}

	// 一次性綁定，之後不再變更；綁定當下要跑第一次名冊同步
	course.ActiveLmsID = lo.ToPtr(launch.Course.LmsID)
	r.applyCourseClaims(&course, launch)
	if err := tx.Save(&course).Error; err != nil {
		return fmt.Errorf("failed to link course to LMS: %w", err)
	}
	out.Course = &course
	out.NeedsRosterSync = true
	return nil
}

func (r *Reconciler) applyCourseClaims(course *models.Course, launch *lti.LaunchContext) {
	if launch.Course.Title != "" {
		course.Name = launch.Course.Title
	}
	if launch.Course.Abbreviation != "" {
		course.Abbreviation = launch.Course.Abbreviation
	}
	if launch.Course.Start != nil {
		course.StartDate = launch.Course.Start
	}
	if launch.Course.End != nil {
		course.EndDate = launch.Course.End
	}
	if launch.Course.SisID != "" {
		course.LmsCourseID = lo.ToPtr(launch.Course.SisID)
	}
	if launch.NamesRoleService != "" {
		course.NamesRoleService = lo.ToPtr(launch.NamesRoleService)
	}
}

// reconcileAssignment 是第三步：以 active_lms_id 找作業
// LMS 端的作業設定可以獨立修改，更新時不能默默破壞本地的評分承諾：
// 期限只能往後延，已有已提交記錄的作業不能下架
func (r *Reconciler) reconcileAssignment(tx *gorm.DB, launch *lti.LaunchContext, out *Outcome) error {
	if launch.Assignment.LmsID == "" {
		return nil
	}

	var assignment models.Assignment
	err := tx.Preload("PresetNodes").
		Where("active_lms_id = ?", launch.Assignment.LmsID).
		First(&assignment).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil
	case err != nil:
		return fmt.Errorf("failed to find assignment by active lms id: %w", err)
	}

	if launch.Assignment.Title != "" {
		assignment.Name = launch.Assignment.Title
	}
	if launch.Assignment.Description != "" {
		assignment.Description = r.sanitizer.Sanitize(launch.Assignment.Description)
	}
	if launch.Assignment.PointsPossible != nil {
		assignment.PointsPossible = *launch.Assignment.PointsPossible
	}
	if launch.Assignment.Unlock != nil {
		assignment.UnlockDate = launch.Assignment.Unlock
	}

	r.applyAssignmentDeadlines(&assignment, launch)

	if launch.Assignment.Published != nil {
		if err := r.applyPublishedState(tx, &assignment, *launch.Assignment.Published); err != nil {
			return err
		}
	}

	// 成績服務端點跟著最新的 launch 走：切回 LTI 1.0 時要清掉 1.3 的殘留
	if launch.Version == lti.Version13 && launch.GradePassback.GradesService != "" {
		assignment.GradesService = lo.ToPtr(launch.GradePassback.GradesService)
	} else if launch.Version == lti.Version10 {
		assignment.GradesService = nil
	}

	if err := tx.Save(&assignment).Error; err != nil {
		return fmt.Errorf("failed to update assignment from launch: %w", err)
	}
	out.Assignment = &assignment
	return nil
}

// applyAssignmentDeadlines 套用只延後不提前的期限更新
// 新日期比任何既有期限節點更早時跳過更新(提前的情形尚無明確規範)
func (r *Reconciler) applyAssignmentDeadlines(assignment *models.Assignment, launch *lti.LaunchContext) {
	var latestDue, latestLock *time.Time
	for _, node := range assignment.PresetNodes {
		if node.DueDate != nil && (latestDue == nil || node.DueDate.After(*latestDue)) {
			latestDue = node.DueDate
		}
		if node.LockDate != nil && (latestLock == nil || node.LockDate.After(*latestLock)) {
			latestLock = node.LockDate
		}
	}

	if due := launch.Assignment.Due; due != nil {
		if latestDue != nil && latestDue.After(*due) {
			r.logger.Warn("Skipping due date update that would shrink past a preset deadline",
				slog.Time("requested", *due),
				slog.Time("preset", *latestDue),
			)
		} else {
			assignment.DueDate = due
		}
	}
	if lock := launch.Assignment.Lock; lock != nil {
		if (latestLock != nil && latestLock.After(*lock)) || (latestDue != nil && latestDue.After(*lock)) {
			r.logger.Warn("Skipping lock date update that would shrink past a preset deadline",
				slog.Time("requested", *lock),
			)
		} else {
			assignment.LockDate = lock
		}
	}
}

// applyPublishedState 套用發佈狀態
// 發佈永遠允許；已有已提交記錄時拒絕下架
func (r *Reconciler) applyPublishedState(tx *gorm.DB, assignment *models.Assignment, published bool) error {
	if published || !assignment.IsPublished {
		assignment.IsPublished = published
		return nil
	}

	var count int64
	err := tx.Model(&models.Entry{}).
		Joins("JOIN journals ON journals.id = entries.journal_id").
		Where("journals.assignment_id = ?", assignment.ID).
		Where("entries.deleted_at IS NULL AND journals.deleted_at IS NULL").
		Count(&count).Error
	if err != nil {
		return fmt.Errorf("failed to count submitted entries: %w", err)
	}
	if count > 0 {
		r.logger.Warn("Refusing to unpublish assignment with submitted entries",
			slog.String("assignmentId", assignment.ID.String()),
			slog.Int64("entries", count),
		)
		return nil
	}
	assignment.IsPublished = false
	return nil
}

// reconcileParticipation 是第四步：把使用者掛進課程
// 角色可以隨每次 launch 改變(與黏性的 IsTeacher 不同)，
// 分組依 launch 的 section 清單補齊
func (r *Reconciler) reconcileParticipation(tx *gorm.DB, launch *lti.LaunchContext, role lti.Role, out *Outcome) error {
	var participation models.Participation
	err := tx.Where("user_id = ? AND course_id = ?", out.User.ID, out.Course.ID).
		First(&participation).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		participation = models.Participation{
			UserID:   out.User.ID,
			CourseID: out.Course.ID,
			Role:     string(role),
		}
		if err := tx.Create(&participation).Error; err != nil {
			return fmt.Errorf("failed to create participation: %w", err)
		}
	case err != nil:
		return fmt.Errorf("failed to find participation: %w", err)
	default:
		if participation.Role != string(role) {
			participation.Role = string(role)
			if err := tx.Save(&participation).Error; err != nil {
				return fmt.Errorf("failed to update participation role: %w", err)
			}
		}
	}

	if err := r.resolveGroups(tx, launch, &participation, out.Course); err != nil {
		return err
	}
	out.Participation = &participation
	return nil
}

// resolveGroups 補齊 launch 宣告的分組
// LMS 沒提供名稱時以課程內的分組數量編出 Group %d 的代稱，
// 名稱之後由名冊同步修正
func (r *Reconciler) resolveGroups(tx *gorm.DB, launch *lti.LaunchContext, participation *models.Participation, course *models.Course) error {
	if len(launch.GroupIDs) == 0 {
		return nil
	}

	var existing []models.Group
	if err := tx.Where("course_id = ? AND lms_id IN ?", course.ID, launch.GroupIDs).
		Find(&existing).Error; err != nil {
		return fmt.Errorf("failed to find groups: %w", err)
	}
	byLmsID := lo.SliceToMap(existing, func(g models.Group) (string, models.Group) {
		return g.LmsID, g
	})

	var total int64
	if err := tx.Model(&models.Group{}).
		Where("course_id = ?", course.ID).
		Count(&total).Error; err != nil {
		return fmt.Errorf("failed to count course groups: %w", err)
	}

	groups := make([]models.Group, 0, len(launch.GroupIDs))
	var created int64
	for _, lmsID := range launch.GroupIDs {
		if group, ok := byLmsID[lmsID]; ok {
			groups = append(groups, group)
			continue
		}
		created++
		group := models.Group{
			Name:     fmt.Sprintf("Group %d", total+created),
			LmsID:    lmsID,
			CourseID: course.ID,
		}
		if err := tx.Create(&group).Error; err != nil {
			return fmt.Errorf("failed to create group %q: %w", lmsID, err)
		}
		groups = append(groups, group)
	}

	var current []models.Group
	if err := tx.Model(participation).Association("Groups").Find(&current); err != nil {
		return fmt.Errorf("failed to load participation groups: %w", err)
	}
	currentIDs := lo.SliceToMap(current, func(g models.Group) (string, struct{}) {
		return g.LmsID, struct{}{}
	})

	for _, group := range groups {
		if _, ok := currentIDs[group.LmsID]; ok {
			continue
		}
		if err := tx.Model(participation).Association("Groups").Append(&group); err != nil {
			return fmt.Errorf("failed to add participation to group %q: %w", group.LmsID, err)
		}
	}
	return nil
}

// reconcileJournal 找出使用者在這個作業上的日誌並更新成績回傳座標
// 座標只在有變動時寫入；變動且已有日誌時通知呼叫端排一筆成績回傳，
// 讓 LMS 端的成績欄位跟上最新的連結
func (r *Reconciler) reconcileJournal(tx *gorm.DB, launch *lti.LaunchContext, out *Outcome) error {
	var journal models.Journal
	err := tx.Where("user_id = ? AND assignment_id = ?", out.User.ID, out.Assignment.ID).
		First(&journal).Error
	switch {
	case err == nil:
		out.Journal = &journal
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("failed to find journal: %w", err)
	}

	var outcomeURL, sourcedid *string
	if launch.GradePassback.OutcomeURL != "" {
		outcomeURL = lo.ToPtr(launch.GradePassback.OutcomeURL)
	}
	if launch.GradePassback.Sourcedid != "" {
		sourcedid = lo.ToPtr(launch.GradePassback.Sourcedid)
	}
	if ptrEqual(out.Participation.GradeURL, outcomeURL) && ptrEqual(out.Participation.Sourcedid, sourcedid) {
		return nil
	}

	out.Participation.GradeURL = outcomeURL
	out.Participation.Sourcedid = sourcedid
	if err := tx.Save(out.Participation).Error; err != nil {
		return fmt.Errorf("failed to update grade passback coordinates: %w", err)
	}
	out.PassbackChanged = out.Journal != nil
	return nil
}

func ptrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
