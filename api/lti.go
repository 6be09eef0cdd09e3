package api

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"ejournal/adapters/lti"
	"ejournal/reconcile"
)

// OIDC login 的 state/nonce 只需要撐過一次跳轉
const oidcLoginTTL = 10 * time.Minute

// RegisterRoutes 掛載 LTI 相關路由
func (impl *ServerImpl) RegisterRoutes(router gin.IRouter) {
	router.POST("/lti/launch", impl.PostLtiLaunch)
	router.GET("/lti/oidc/login", impl.OidcLogin)
	router.POST("/lti/oidc/login", impl.OidcLogin)
	router.POST("/lti/launch13", impl.PostLtiLaunch13)
	router.GET("/lti/launch13", impl.GetLtiLaunch13)
}

// LTI 1.0 launch
// (POST /lti/launch)
func (impl *ServerImpl) PostLtiLaunch(ctx *gin.Context) {
	const op = "PostLtiLaunch"
	if err := ctx.Request.ParseForm(); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"message": "malformed form body"})
		return
	}
	// 簽章驗證需要平台實際請求的絕對網址(含query)與全部參數
	launchURL := impl.toolURL(ctx.Request.URL.RequestURI())
	result, err := impl.adapter10.Parse(ctx.Request.Method, launchURL, ctx.Request.Form)
	if err != nil {
		impl.abortLaunch(ctx, op, err)
		return
	}
	impl.completeLaunch(ctx, op, result.Launch)
}

// LTI 1.3 第三方起始登入(OIDC login initiation)
// 平台用GET或POST都有可能，兩者參數相同
// (GET|POST /lti/oidc/login)
func (impl *ServerImpl) OidcLogin(ctx *gin.Context) {
	const op = "OidcLogin"
	if err := ctx.Request.ParseForm(); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"message": "malformed form body"})
		return
	}
	form := ctx.Request.Form

	// 只受理已註冊平台的登入請求
	if form.Get("iss") != impl.platform.Issuer() {
		ctx.JSON(http.StatusBadRequest, gin.H{"message": "unknown issuer"})
		return
	}
	if clientID := form.Get("client_id"); clientID != "" && clientID != impl.platform.ClientID() {
		ctx.JSON(http.StatusBadRequest, gin.H{"message": "unknown client id"})
		return
	}
	loginHint := form.Get("login_hint")
	if loginHint == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"message": "missing login_hint"})
		return
	}

	state, err := generateID("st")
	if err != nil {
		impl.abortLaunch(ctx, op, fmt.Errorf("[%s] Unable to generate state, err=%w", op, err))
		return
	}
	nonce, err := generateID("n")
	if err != nil {
		impl.abortLaunch(ctx, op, fmt.Errorf("[%s] Unable to generate nonce, err=%w", op, err))
		return
	}
	// nonce以state為key暫存，launch回來時一次性取回比對
	if err := impl.redisClient.Set(ctx, impl.nonceKey(state), nonce, oidcLoginTTL).Err(); err != nil {
		impl.abortLaunch(ctx, op, fmt.Errorf("[%s] Fail to store login nonce, err=%w", op, err))
		return
	}

	authURL := impl.platform.AuthRequestURL(
		state,
		nonce,
		loginHint,
		form.Get("lti_message_hint"),
		impl.toolURL("/lti/launch13"),
	)
	ctx.Redirect(http.StatusFound, authURL)
}

// LTI 1.3 launch(OIDC form_post帶回的id-token)
// deep-linking launch 在這裡短路，直接回覆自動送出的設定表單
// (POST /lti/launch13)
func (impl *ServerImpl) PostLtiLaunch13(ctx *gin.Context) {
	const op = "PostLtiLaunch13"

	state := ctx.PostForm("state")
	rawIDToken := ctx.PostForm("id_token")
	if state == "" || rawIDToken == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"message": "missing state or id_token"})
		return
	}
	// state換回login時存的nonce，取不到代表state偽造或已過期
	nonce, err := impl.redisClient.GetDel(ctx, impl.nonceKey(state)).Result()
	if errors.Is(err, redis.Nil) {
		impl.abortLaunch(ctx, op, lti.ErrStateMismatch)
		return
	}
	if err != nil {
		impl.abortLaunch(ctx, op, fmt.Errorf("[%s] Fail to load login nonce, err=%w", op, err))
		return
	}

	result, err := impl.adapter13.Parse(ctx, rawIDToken, nonce)
	if err != nil {
		impl.abortLaunch(ctx, op, err)
		return
	}

	// deep-linking：回覆的資源指回launch端點，之後平台會對它發起一般launch
	if result.DeepLink != nil {
		html, err := lti.BuildDeepLinkResponse(
			result.DeepLink,
			lti.DeepLinkResource{URL: impl.toolURL("/lti/launch13"), Title: "eJournal"},
			impl.config.Platform.ToolPrivateKey,
			impl.config.Platform.ToolKeyID,
		)
		if err != nil {
			impl.abortLaunch(ctx, op, fmt.Errorf("[%s] Fail to build deep link response, err=%w", op, err))
			return
		}
		ctx.Data(http.StatusOK, "text/html; charset=utf-8", html)
		return
	}

	launch := result.Launch
	// gradebook的submission連結會在launch網址上帶日誌識別碼
	if submission := ctx.Query("submission"); submission != "" {
		launch.TargetJournalID = submission
	}
	// 先存一份launch session，NoUser時前端註冊完可以拿launch id回來續跑
	if err := impl.launchStore.Put(ctx, launch.LaunchID, launch); err != nil {
		impl.abortLaunch(ctx, op, err)
		return
	}
	impl.completeLaunch(ctx, op, launch)
}

// LTI 1.3 launch續跑：前端補完帳號後以launch id回到同一次launch
// session是read-once，續跑只有一次機會
// (GET /lti/launch13)
func (impl *ServerImpl) GetLtiLaunch13(ctx *gin.Context) {
	const op = "GetLtiLaunch13"

	launchID := ctx.Query("state")
	if launchID == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"message": "missing state"})
		return
	}
	launch, err := impl.launchStore.Take(ctx, launchID)
	if err != nil {
		impl.abortLaunch(ctx, op, err)
		return
	}
	impl.completeLaunch(ctx, op, launch)
}

// completeLaunch 是兩個協定共同的收尾：reconcile、排背景任務、跳轉前端
func (impl *ServerImpl) completeLaunch(ctx *gin.Context, op string, launch *lti.LaunchContext) {
	out, err := impl.reconciler.Reconcile(ctx, launch)
	if err != nil {
		impl.abortLaunch(ctx, op, err)
		return
	}

	// 名冊同步是best-effort，失敗只記錄，不阻擋launch。
	// 課程剛完成一次性綁定時同步執行，讓教師馬上看到分組；
	// 之後的教師launch改排背景任務重新對齊名冊
	switch {
	case out.NeedsRosterSync:
		if err := impl.handleRosterSync(ctx, reconcile.RosterSyncTask{CourseID: out.Course.ID}); err != nil {
			slog.Error("Fail to run initial roster sync",
				slog.String("caller", op),
				slog.String("courseId", out.Course.ID.String()),
				slog.Any("error", err),
			)
		}
	case out.Course != nil && out.Role == lti.RoleTeacher:
		if err := impl.rosterDispatcher.Dispatch(reconcile.RosterSyncTask{CourseID: out.Course.ID}); err != nil {
			slog.Error("Fail to dispatch roster sync task",
				slog.String("caller", op),
				slog.String("courseId", out.Course.ID.String()),
				slog.Any("error", err),
			)
		}
	}
	// 成績回傳座標變動時重送一次該日誌的最新成績
	if out.PassbackChanged {
		if err := impl.gradeDispatcher.Dispatch(reconcile.GradePassbackTask{JournalID: out.Journal.ID}); err != nil {
			slog.Error("Fail to dispatch grade passback task",
				slog.String("caller", op),
				slog.String("journalId", out.Journal.ID.String()),
				slog.Any("error", err),
			)
		}
	}

	resolution, err := impl.resolver.Resolve(out)
	if err != nil {
		impl.abortLaunch(ctx, op, err)
		return
	}
	ctx.Redirect(http.StatusFound, resolution.RedirectURL(impl.config.BaseLink))
}

// abortLaunch 把錯誤對應到HTTP狀態碼
// 協定錯誤與綁定衝突是請求端的問題，其他一律視為內部錯誤
func (impl *ServerImpl) abortLaunch(ctx *gin.Context, op string, err error) {
	var conflict *lti.ConflictError
	switch {
	case errors.As(err, &conflict):
		ctx.JSON(http.StatusConflict, gin.H{"message": conflict.Error()})
	case errors.Is(err, lti.ErrProtocol):
		ctx.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
	default:
		slog.Error("Fail to handle launch", slog.String("caller", op), slog.Any("error", err))
		ctx.JSON(http.StatusInternalServerError, gin.H{"message": "internal server error"})
	}
}

// toolURL 以本服務的對外根網址組出絕對路徑
func (impl *ServerImpl) toolURL(path string) string {
	return strings.TrimRight(impl.config.ToolBaseURL, "/") + path
}

// nonceKey 是OIDC login nonce在redis的key
func (impl *ServerImpl) nonceKey(state string) string {
	return impl.config.Redis.KeyPrefix + "nonce:" + state
}

func generateID(prefix string) (string, error) {
	const op = "generateID"
	bytes := make([]byte, 20)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("[%s] Fail to generate unique id, err=%w", op, err)
	}
	return prefix + "_" + base64.URLEncoding.EncodeToString(bytes), nil
}
