package api

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"ejournal/adapters/launchstore"
	"ejournal/adapters/lms"
	"ejournal/adapters/lti"
	"ejournal/adapters/redlock"
	"ejournal/adapters/taskqueue"
	"ejournal/models"
	"ejournal/reconcile"
)

type ServerImpl struct {
	adapter10 *lti.Adapter10
	adapter13 *lti.Adapter13
	platform  *lti.Platform

	launchStore  launchstore.IStore
	lmsClient    lms.IClient
	reconciler   *reconcile.Reconciler
	resolver     *reconcile.Resolver
	synchronizer *reconcile.Synchronizer

	rosterDispatcher taskqueue.IDispatcher[reconcile.RosterSyncTask]
	gradeDispatcher  taskqueue.IDispatcher[reconcile.GradePassbackTask]
	rosterSource     taskqueue.IWorkerSource[reconcile.RosterSyncTask]
	gradeSource      taskqueue.IWorkerSource[reconcile.GradePassbackTask]

	redisClient *redis.Client
	db          *gorm.DB
	wg          sync.WaitGroup
	cancelFunc  context.CancelFunc

	config ServerConfig
}

func NewServer(config ServerConfig) (*ServerImpl, error) {
	const op = "NewServer"

	// 初始化資料庫連線
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable&search_path=%s", config.DB.User, config.DB.Password, config.DB.Host, config.DB.Port, config.DB.Database, config.DB.Schema)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		NamingStrategy: schema.NamingStrategy{
			TablePrefix: config.DB.Schema + ".",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to connect to database, err=%w", op, err)
	}

	// 初始化Redis連線
	redisClient := redis.NewClient(&redis.Options{
		Addr:     config.Redis.Addr,
		Password: config.Redis.Password,
		DB:       config.Redis.DB,
	})

	// 初始化LTI 1.3平台
	platform, err := lti.NewPlatform(context.Background(), lti.PlatformConfig{
		Issuer:         config.Platform.Issuer,
		ClientID:       config.Platform.ClientID,
		DeploymentID:   config.Platform.DeploymentID,
		AuthLoginURL:   config.Platform.AuthLoginURL,
		TokenURL:       config.Platform.TokenURL,
		JwksURL:        config.Platform.JwksURL,
		ToolPrivateKey: config.Platform.ToolPrivateKey,
		ToolKeyID:      config.Platform.ToolKeyID,
	})
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to initial LTI platform, err=%w", op, err)
	}

	// 初始化launch store，TTL跟著refresh token的效期走
	store := launchstore.NewStore(
		redisClient,
		launchstore.WithStorePrefix(config.Redis.KeyPrefix+"launch:"),
		launchstore.WithStoreTTL(config.Auth.RefreshTTL),
	)

	// 初始化LMS client與reconcile鏈
	consumer := &lti.OAuth1Consumer{Key: config.Lti10.ConsumerKey, Secret: config.Lti10.ConsumerSecret}
	lmsClient := lms.NewClient(config.Lms.APIBaseURL, consumer)
	issuer := reconcile.NewTokenIssuer(
		config.Auth.PrivateKey,
		config.Auth.Issuer,
		reconcile.WithAccessTokenTTL(config.Auth.AccessTTL),
		reconcile.WithRefreshTokenTTL(config.Auth.RefreshTTL),
	)
	reconciler := reconcile.NewReconciler(db)
	resolver := reconcile.NewResolver(issuer)
	synchronizer := reconcile.NewSynchronizer(db, lmsClient,
		reconcile.WithSynchronizerMutexFactory(func(key string) redlock.IMutex {
			return redlock.NewMutex(redisClient, config.Redis.KeyPrefix+key)
		}),
	)

	// 初始化背景任務的發佈端與消費端
	rosterDispatcher, err := taskqueue.NewDispatcher[reconcile.RosterSyncTask](redisClient, reconcile.RosterSyncStream)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create roster sync dispatcher, err=%w", op, err)
	}
	gradeDispatcher, err := taskqueue.NewDispatcher[reconcile.GradePassbackTask](redisClient, reconcile.GradePassbackStream)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create grade passback dispatcher, err=%w", op, err)
	}
	rosterSource, err := taskqueue.NewWorkerSource[reconcile.RosterSyncTask](
		redisClient, reconcile.RosterSyncStream, config.Redis.ConsumerGroup, config.ID)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create roster sync worker source, err=%w", op, err)
	}
	gradeSource, err := taskqueue.NewWorkerSource[reconcile.GradePassbackTask](
		redisClient, reconcile.GradePassbackStream, config.Redis.ConsumerGroup, config.ID)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create grade passback worker source, err=%w", op, err)
	}

	return &ServerImpl{
		adapter10:        lti.NewAdapter10(config.Lti10.ConsumerKey, config.Lti10.ConsumerSecret, slog.Default()),
		adapter13:        lti.NewAdapter13(platform, slog.Default()),
		platform:         platform,
		launchStore:      store,
		lmsClient:        lmsClient,
		reconciler:       reconciler,
		resolver:         resolver,
		synchronizer:     synchronizer,
		rosterDispatcher: rosterDispatcher,
		gradeDispatcher:  gradeDispatcher,
		rosterSource:     rosterSource,
		gradeSource:      gradeSource,
		redisClient:      redisClient,
		db:               db,
		config:           config,
	}, nil
}

func (impl *ServerImpl) Start() {
	// 啟動任務發佈端
	impl.rosterDispatcher.Start()
	impl.gradeDispatcher.Start()
	// 啟動任務消費端
	impl.rosterSource.Start()
	impl.gradeSource.Start()

	ctx, cancel := context.WithCancel(context.Background())
	impl.cancelFunc = cancel

	// 啟動名冊同步worker
	slog.Info("Start roster synchronization worker")
	impl.wg.Add(1)
	go func() {
		logger := slog.Default().With(slog.String("caller", "RosterSyncWorker"))
		defer impl.wg.Done()
		defer slog.Info("Roster synchronization worker stopped")
		for {
			select {
			case <-ctx.Done():
				return
			case task, ok := <-impl.rosterSource.Tasks():
				if !ok {
					return
				}
				settleTask(ctx, logger, task, impl.handleRosterSync(ctx, task.Data))
			}
		}
	}()

	// 啟動成績回傳worker
	slog.Info("Start grade passback worker")
	impl.wg.Add(1)
	go func() {
		logger := slog.Default().With(slog.String("caller", "GradePassbackWorker"))
		defer impl.wg.Done()
		defer slog.Info("Grade passback worker stopped")
		for {
			select {
			case <-ctx.Done():
				return
			case task, ok := <-impl.gradeSource.Tasks():
				if !ok {
					return
				}
				settleTask(ctx, logger, task, impl.handleGradePassback(ctx, task.Data))
			}
		}
	}()
}

func (impl *ServerImpl) Close() {
	impl.cancelFunc()
	impl.wg.Wait()
	impl.rosterSource.Close()
	impl.gradeSource.Close()
	impl.rosterDispatcher.Close()
	impl.gradeDispatcher.Close()
}

// settleTask 依處理結果確認或丟棄任務
func settleTask[T any](ctx context.Context, logger *slog.Logger, task *taskqueue.Task[T], handleErr error) {
	if handleErr != nil {
		logger.Error("Fail to handle task", slog.Any("error", handleErr))
		if err := task.Fail(ctx, handleErr); err != nil {
			logger.Error("Fail to fail task", slog.Any("error", err))
		}
		return
	}
	if err := task.Done(ctx); err != nil {
		logger.Error("Handle success but fail to done task", slog.Any("error", err))
		if err := task.Fail(ctx, err); err != nil {
			logger.Error("Handle success but fail to fail task", slog.Any("error", err))
		}
	}
}

// handleRosterSync 處理一筆名冊同步任務
func (impl *ServerImpl) handleRosterSync(ctx context.Context, task reconcile.RosterSyncTask) error {
	course := models.Course{ID: task.CourseID}
	if result := impl.db.First(&course); result.Error != nil {
		return fmt.Errorf("fail to find course, err=%w", result.Error)
	}
	if course.NamesRoleService == nil && course.LmsCourseID == nil {
		// LTI 1.0課程沒有可用的名冊端點
		return nil
	}

	accessToken, err := impl.platform.ServiceAccessToken(ctx)
	if err != nil {
		return fmt.Errorf("fail to get service access token, err=%w", err)
	}
	return impl.synchronizer.SyncRoster(ctx, &course, accessToken)
}

// handleGradePassback 處理一筆成績回傳任務
// 任務不帶成績，送出當下日誌的最新狀態，重送因此是安全的
func (impl *ServerImpl) handleGradePassback(ctx context.Context, task reconcile.GradePassbackTask) error {
	journal := models.Journal{ID: task.JournalID}
	if result := impl.db.Preload("Entries").Preload("User").Preload("Assignment").First(&journal); result.Error != nil {
		return fmt.Errorf("fail to find journal, err=%w", result.Error)
	}
	assignment := journal.Assignment
	user := journal.User

	// LTI 1.3 作業走AGS
	if assignment.GradesService != nil {
		accessToken, err := impl.platform.ServiceAccessToken(ctx)
		if err != nil {
			return fmt.Errorf("fail to get service access token, err=%w", err)
		}
		submissionURL := impl.toolURL("/lti/launch13") + "?submission=" + journal.ID.String()
		score := reconcile.ScoreForJournal(&journal, assignment, user, submissionURL)
		return impl.lmsClient.PublishScore(ctx, *assignment.GradesService, accessToken, score)
	}

	// LTI 1.0 作業走Basic Outcomes，座標存在參與關係上
	var participation models.Participation
	err := impl.db.
		Where("user_id = ? AND course_id = ?", journal.UserID, assignment.CourseID).
		First(&participation).Error
	if err != nil {
		return fmt.Errorf("fail to find participation, err=%w", err)
	}
	if participation.GradeURL == nil || participation.Sourcedid == nil {
		// 沒有座標代表這個帳號從未經由LMS launch，沒有地方可以回傳
		return nil
	}
	return impl.lmsClient.ReplaceResult(
		ctx,
		*participation.GradeURL,
		*participation.Sourcedid,
		reconcile.NormalizedGrade(&journal, assignment),
	)
}
