package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"gorm.io/gorm"

	"ejournal/adapters/lms"
	"ejournal/adapters/lti"
	"ejournal/adapters/redlock"
	"ejournal/models"
)

// MutexFactory 為指定的 key 建立分散式鎖
type MutexFactory func(key string) redlock.IMutex

type synchronizerOptions struct {
	logger   *slog.Logger
	newMutex MutexFactory
}

type SynchronizerOption func(*synchronizerOptions)

// WithSynchronizerLogger 設置日誌記錄器
func WithSynchronizerLogger(logger *slog.Logger) SynchronizerOption {
	return func(o *synchronizerOptions) {
		o.logger = logger
	}
}

// WithSynchronizerMutexFactory 設置分散式鎖的建立函數
func WithSynchronizerMutexFactory(factory MutexFactory) SynchronizerOption {
	return func(o *synchronizerOptions) {
		o.newMutex = factory
	}
}

// Synchronizer 把 LMS 的名冊同步進本地的分組與參與關係
// 同一課程同時只允許一個同步在跑(分散式鎖)；同步是冪等的，
// 部分失敗不回滾，重跑即可補齊
type Synchronizer struct {
	db      *gorm.DB
	client  lms.IClient
	logger  *slog.Logger
	options synchronizerOptions
}

// NewSynchronizer 建立名冊同步器
func NewSynchronizer(db *gorm.DB, client lms.IClient, opts ...SynchronizerOption) *Synchronizer {
	options := synchronizerOptions{
		logger: slog.Default(),
		newMutex: func(key string) redlock.IMutex {
			return nil
		},
	}
	for _, opt := range opts {
		opt(&options)
	}
	return &Synchronizer{
		db:      db,
		client:  client,
		logger:  options.logger.With(slog.String("caller", "reconcile.Synchronizer")),
		options: options,
	}
}

// SyncRoster 同步一個課程的名冊
// 先經由 NRPS 補齊成員，再打 LMS 原生 API 對齊分組；
// 外呼收到非 2xx 直接回報，已套用的本地更新保留
func (s *Synchronizer) SyncRoster(ctx context.Context, course *models.Course, accessToken string) error {
	const op = "Synchronizer.SyncRoster"

	if mutex := s.options.newMutex(redlock.CourseSyncKey(course.ID.String())); mutex != nil {
		lockCtx, err := mutex.Lock(ctx)
		if err != nil {
			return fmt.Errorf("[%s] Fail to acquire course sync lock, err=%w", op, err)
		}
		defer mutex.Unlock()
		ctx = lockCtx
	}

	if course.NamesRoleService != nil {
		if err := s.syncMembers(ctx, course, accessToken); err != nil {
			return fmt.Errorf("[%s] Fail to sync members, err=%w", op, err)
		}
	}
	if course.LmsCourseID != nil {
		if err := s.syncSections(ctx, course, accessToken); err != nil {
			return fmt.Errorf("[%s] Fail to sync sections, err=%w", op, err)
		}
	}
	return nil
}

// syncMembers 依 NRPS 回覆逐一建立或更新成員
// 缺少必要身份欄位的成員記警告後跳過，不讓單一壞資料擋下整批同步
func (s *Synchronizer) syncMembers(ctx context.Context, course *models.Course, accessToken string) error {
	members, err := s.client.FetchMembers(ctx, *course.NamesRoleService, accessToken)
	if err != nil {
		return err
	}

	for _, member := range members {
		if member.UserID == "" {
			s.logger.Warn("Skipping roster member without user id",
				slog.String("courseId", course.ID.String()),
				slog.String("name", member.Name),
			)
			continue
		}
		if err := s.upsertMember(ctx, course, member); err != nil {
			s.logger.Warn("Skipping roster member that failed to upsert",
				slog.String("courseId", course.ID.String()),
				slog.String("userId", member.UserID),
				slog.Any("error", err),
			)
		}
	}
	return nil
}

func (s *Synchronizer) upsertMember(ctx context.Context, course *models.Course, member lms.Member) error {
	role, _ := lti.MapRoles(member.Roles)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		err := tx.Where("lti13_id = ?", member.UserID).First(&user).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			username := member.SisID
			if username == "" {
				username = member.UserID
			}
			user = models.User{
				Username:       username,
				FullName:       member.Name,
				ProfilePicture: lti.NormalizeProfilePicture(member.Picture),
				Lti13ID:        lo.ToPtr(member.UserID),
				IsTeacher:      role == lti.RoleTeacher,
			}
			if member.Email != "" {
				user.Email = lo.ToPtr(member.Email)
			}
			if err := tx.Create(&user).Error; err != nil {
				return fmt.Errorf("failed to create roster user: %w", err)
			}
		case err != nil:
			return fmt.Errorf("failed to find roster user: %w", err)
		default:
			if member.Name != "" {
				user.FullName = member.Name
			}
			if member.Email != "" {
				user.Email = lo.ToPtr(member.Email)
			}
			if picture := lti.NormalizeProfilePicture(member.Picture); picture != "" {
				user.ProfilePicture = picture
			}
			if role == lti.RoleTeacher {
				user.IsTeacher = true
			}
			if err := tx.Save(&user).Error; err != nil {
				return fmt.Errorf("failed to update roster user: %w", err)
			}
		}

		return ensureParticipation(tx, user.ID, course.ID, role)
	})
}

// ensureParticipation 建立使用者在課程內的參與關係
// 已存在時不動既有角色：名冊同步不該翻動 launch 給的角色
func ensureParticipation(tx *gorm.DB, userID, courseID uuid.UUID, role lti.Role) error {
	var participation models.Participation
	err := tx.Where("user_id = ? AND course_id = ?", userID, courseID).
		First(&participation).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		participation = models.Participation{
			UserID:   userID,
			CourseID: courseID,
			Role:     string(role),
		}
		if err := tx.Create(&participation).Error; err != nil {
			return fmt.Errorf("failed to create roster participation: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("failed to find roster participation: %w", err)
	}
	return nil
}

// syncSections 對齊 LMS 的分組：建缺的、改名舊的，再補組員
func (s *Synchronizer) syncSections(ctx context.Context, course *models.Course, accessToken string) error {
	sections, err := s.client.FetchSections(ctx, *course.LmsCourseID, accessToken)
	if err != nil {
		return err
	}

	db := s.db.WithContext(ctx)
	for _, section := range sections {
		lmsID := section.ID.String()
		if lmsID == "" {
			s.logger.Warn("Skipping section without id",
				slog.String("courseId", course.ID.String()),
				slog.String("name", section.Name),
			)
			continue
		}

		var group models.Group
		err := db.Where("course_id = ? AND lms_id = ?", course.ID, lmsID).First(&group).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			group = models.Group{
				Name:     section.Name,
				LmsID:    lmsID,
				CourseID: course.ID,
			}
			if err := db.Create(&group).Error; err != nil {
				return fmt.Errorf("failed to create group %q: %w", lmsID, err)
			}
		case err != nil:
			return fmt.Errorf("failed to find group %q: %w", lmsID, err)
		default:
			// LMS 端改了名稱就跟著改
			if section.Name != "" && group.Name != section.Name {
				group.Name = section.Name
				if err := db.Save(&group).Error; err != nil {
					return fmt.Errorf("failed to rename group %q: %w", lmsID, err)
				}
			}
		}

		if err := s.syncSectionStudents(ctx, course, &group, section.Students); err != nil {
			return err
		}
	}
	return nil
}

// syncSectionStudents 把分組內的學生補進課程與分組
// 沒有帳號名稱的學生記警告後跳過
func (s *Synchronizer) syncSectionStudents(ctx context.Context, course *models.Course, group *models.Group, students []lms.SectionStudent) error {
	db := s.db.WithContext(ctx)

	var current []models.Participation
	if err := db.Model(group).Association("Participants").Find(&current); err != nil {
		return fmt.Errorf("failed to load group participants: %w", err)
	}
	currentUserIDs := lo.SliceToMap(current, func(p models.Participation) (string, struct{}) {
		return p.UserID.String(), struct{}{}
	})

	for _, student := range students {
		if student.Username == "" {
			s.logger.Warn("Skipping section student without username",
				slog.String("groupId", group.ID.String()),
				slog.String("name", student.FullName),
			)
			continue
		}

		var user models.User
		err := db.Where("username = ?", student.Username).First(&user).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			user = models.User{
				Username: student.Username,
				FullName: student.FullName,
			}
			if err := db.Create(&user).Error; err != nil {
				return fmt.Errorf("failed to create section student: %w", err)
			}
		case err != nil:
			return fmt.Errorf("failed to find section student: %w", err)
		default:
			if student.FullName != "" && user.FullName != student.FullName {
				user.FullName = student.FullName
				if err := db.Save(&user).Error; err != nil {
					return fmt.Errorf("failed to update section student: %w", err)
				}
			}
		}

		if err := ensureParticipation(db, user.ID, course.ID, lti.RoleStudent); err != nil {
			return err
		}
		if _, ok := currentUserIDs[user.ID.String()]; ok {
			continue
		}

		var participation models.Participation
		if err := db.Where("user_id = ? AND course_id = ?", user.ID, course.ID).
			First(&participation).Error; err != nil {
			return fmt.Errorf("failed to reload participation: %w", err)
		}
		if err := db.Model(group).Association("Participants").Append(&participation); err != nil {
			return fmt.Errorf("failed to add participant to group: %w", err)
		}
	}
	return nil
}

