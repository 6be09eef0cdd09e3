package lti

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"
)

// Adapter13 解析 LTI 1.3 launch(OIDC form_post 帶回的 id-token)
type Adapter13 struct {
	platform *Platform
	logger   *slog.Logger
}

// NewAdapter13 建立 LTI 1.3 adapter
func NewAdapter13(platform *Platform, logger *slog.Logger) *Adapter13 {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter13{
		platform: platform,
		logger:   logger.With(slog.String("caller", "lti.Adapter13")),
	}
}

// rawClaims 是 id-token 內和 launch 相關的 claim
// namespaced claim 以完整 URI 作為 json tag，不可依位置讀取
type rawClaims struct {
	Sub     string `json:"sub"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Picture string `json:"picture"`

	MessageType  string   `json:"https://purl.imsglobal.org/spec/lti/claim/message_type"`
	DeploymentID string   `json:"https://purl.imsglobal.org/spec/lti/claim/deployment_id"`
	Roles        []string `json:"https://purl.imsglobal.org/spec/lti/claim/roles"`

	Context struct {
		ID    string `json:"id"`
		Title string `json:"title"`
		Label string `json:"label"`
	} `json:"https://purl.imsglobal.org/spec/lti/claim/context"`

	ResourceLink struct {
		ID          string `json:"id"`
		Title       string `json:"title"`
		Description string `json:"description"`
	} `json:"https://purl.imsglobal.org/spec/lti/claim/resource_link"`

	Custom map[string]any `json:"https://purl.imsglobal.org/spec/lti/claim/custom"`

	NamesRoles json.RawMessage `json:"https://purl.imsglobal.org/spec/lti-nrps/claim/namesroleservice"`
	Endpoint   json.RawMessage `json:"https://purl.imsglobal.org/spec/lti-ags/claim/endpoint"`

	DeepLinking struct {
		ReturnURL string `json:"deep_link_return_url"`
		Data      string `json:"data"`
	} `json:"https://purl.imsglobal.org/spec/lti-dl/claim/deep_linking_settings"`

	Nonce string `json:"nonce"`
}

// custom claim 的值在不同平台上可能是字串或數字，一律轉成字串處理
func customString(custom map[string]any, key string) string {
	switch v := custom[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	}
	return ""
}

// Parse 驗證 id-token 並輸出 ParseResult
// deep-linking launch 會以 DeepLink 變體回傳並在此短路，不進入 reconcile
func (a *Adapter13) Parse(ctx context.Context, rawIDToken, expectedNonce string) (*ParseResult, error) {
	idToken, err := a.platform.VerifyLaunch(ctx, rawIDToken, expectedNonce)
	if err != nil {
		return nil, err
	}

	var claims rawClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, NewMissingClaimError("id_token claims")
	}
	if want := a.platform.DeploymentID(); want != "" && claims.DeploymentID != want {
		return nil, fmt.Errorf("%w: unknown deployment id %q", ErrProtocol, claims.DeploymentID)
	}

	switch claims.MessageType {
	case MessageTypeDeepLinking:
		if claims.DeepLinking.ReturnURL == "" {
			return nil, NewMissingClaimError(ClaimDeepLinkSettings)
		}
		return &ParseResult{DeepLink: &DeepLinkRequest{
			ReturnURL:    claims.DeepLinking.ReturnURL,
			Data:         claims.DeepLinking.Data,
			DeploymentID: claims.DeploymentID,
			Issuer:       a.platform.Issuer(),
			ClientID:     a.platform.ClientID(),
			Nonce:        claims.Nonce,
		}}, nil
	case MessageTypeResourceLink:
		// 一般 launch，繼續往下解析
	default:
		return nil, ErrUnknownMessageType
	}

	if claims.Sub == "" {
		return nil, NewMissingClaimError("sub")
	}
	username := customString(claims.Custom, CustomUsername)
	if username == "" {
		return nil, NewMissingClaimError(ClaimCustom + "." + CustomUsername)
	}
	if claims.Context.ID == "" {
		return nil, NewMissingClaimError(ClaimCourse)
	}

	// 作業識別碼優先用 custom claim：gradebook launch 時
	// resource_link 的 id 會是別的值
	assignmentID := customString(claims.Custom, CustomAssignmentLtiID)
	if assignmentID == "" {
		assignmentID = claims.ResourceLink.ID
	}
	if assignmentID == "" {
		return nil, NewMissingClaimError(ClaimAssignment)
	}

	lc := &LaunchContext{
		Version:  Version13,
		LaunchID: uuid.NewString(),
		User: UserClaims{
			SubjectID:      claims.Sub,
			Username:       username,
			FullName:       claims.Name,
			Email:          claims.Email,
			ProfilePicture: NormalizeProfilePicture(claims.Picture),
			Roles:          claims.Roles,
			IsTestStudent:  DetectTestStudent(a.logger, claims.Name, claims.Email),
		},
		Course: CourseClaims{
			LmsID:        claims.Context.ID,
			SisID:        customString(claims.Custom, CustomCourseID),
			Title:        claims.Context.Title,
			Abbreviation: claims.Context.Label,
			Start:        ParseDate(customString(claims.Custom, CustomCourseStart)),
			End:          ParseDate(customString(claims.Custom, CustomCourseEnd)),
		},
		Assignment: AssignmentClaims{
			LmsID:          assignmentID,
			Title:          claims.ResourceLink.Title,
			Description:    claims.ResourceLink.Description,
			Unlock:         ParseDate(customString(claims.Custom, CustomAssignmentUnlock)),
			Due:            ParseDate(customString(claims.Custom, CustomAssignmentDue)),
			Lock:           ParseDate(customString(claims.Custom, CustomAssignmentLock)),
			PointsPossible: ParsePoints(customString(claims.Custom, CustomAssignmentPoints)),
			Published:      ParseBool(customString(claims.Custom, CustomAssignmentPub)),
		},
		GradePassback: GradePassbackClaims{
			GradesService: string(claims.Endpoint),
		},
		NamesRoleService: string(claims.NamesRoles),
	}

	if raw := customString(claims.Custom, CustomSectionIDs); raw != "" {
		lc.GroupIDs = SplitList(raw)
	}

	return &ParseResult{Launch: lc}, nil
}
