package reconcile

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"ejournal/adapters/lti"
)

// State 是前端入口狀態，值沿用前端既有的 wire 格式
type State string

const (
	// StateNotSetup 代表課程或作業還沒建立，而這次的角色無權建立
	StateNotSetup State = "-1"
	// StateNoUser 代表外部身份還沒連上本地帳號
	StateNoUser State = "0"
	// StateNoCourse 代表教師要先建立課程
	StateNoCourse State = "1"
	// StateNoAssignment 代表教師要先建立作業
	StateNoAssignment State = "2"
	// StateFinishTeacher 代表一切就緒，以教師視角進入作業
	StateFinishTeacher State = "3"
	// StateFinishStudent 代表一切就緒，以學生視角進入日誌
	StateFinishStudent State = "4"
)

// Resolver 把 reconcile 的結果化約成前端入口狀態與跳轉參數
// 除了簽發權杖以外沒有任何 I/O，狀態表對所有輸入組合都是全函數
type Resolver struct {
	issuer *TokenIssuer
}

// NewResolver 建立 resolver
func NewResolver(issuer *TokenIssuer) *Resolver {
	return &Resolver{issuer: issuer}
}

// Resolution 是解析結果：狀態加上要帶給前端的 query 參數
type Resolution struct {
	State State
	Query url.Values
}

// RedirectURL 組出前端的 LtiLogin 跳轉網址
func (r *Resolution) RedirectURL(baseLink string) string {
	return strings.TrimRight(baseLink, "/") + "/LtiLogin?" + r.Query.Encode()
}

// Resolve 依照 reconcile 結果決定入口狀態
//
//	使用者缺席                        → NoUser
//	課程缺席   + 教師 / 非教師        → NoCourse / NotSetup
//	作業缺席   + 教師 / 非教師        → NoAssignment / NotSetup
//	全部就緒   + 教師 / 非教師        → FinishTeacher / FinishStudent
func (r *Resolver) Resolve(out *Outcome) (*Resolution, error) {
	const op = "Resolver.Resolve"

	query := url.Values{}
	query.Set("launch_id", out.Launch.LaunchID)

	if out.User == nil {
		name := out.Launch.User.FullName
		if name == "" {
			name = out.Launch.User.Username
		}
		query.Set("launch_state", string(StateNoUser))
		query.Set("username_already_exists", strconv.FormatBool(out.UsernameExists))
		query.Set("username", out.Launch.User.Username)
		query.Set("name", name)
		return &Resolution{State: StateNoUser, Query: query}, nil
	}

	pair, err := r.issuer.IssuePair(out.User.ID)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to issue token pair, err=%w", op, err)
	}
	query.Set("jwt_access", pair.Access)
	query.Set("jwt_refresh", pair.Refresh)

	isTeacher := out.Role == lti.RoleTeacher

	if out.Course == nil {
		state := StateNotSetup
		if isTeacher {
			state = StateNoCourse
			// 課程還沒建立時教師要先走設定流程，
			// 把 launch 內的課程與作業欄位帶給前端當表單預設值
			setCoursePrefill(query, &out.Launch.Course)
			setAssignmentPrefill(query, &out.Launch.Assignment)
		}
		query.Set("launch_state", string(state))
		return &Resolution{State: state, Query: query}, nil
	}
	query.Set("course_id", out.Course.ID.String())

	if out.Assignment == nil {
		state := StateNotSetup
		if isTeacher {
			state = StateNoAssignment
			setAssignmentPrefill(query, &out.Launch.Assignment)
		}
		query.Set("launch_state", string(state))
		return &Resolution{State: state, Query: query}, nil
	}
	query.Set("assignment_id", out.Assignment.ID.String())

	// gradebook 的 deep link 會直接指定要開哪本日誌，
	// 否則預設是目前使用者自己的日誌(沒有就留空，由前端按需建立)
	journalID := out.Launch.TargetJournalID
	if journalID == "" && out.Journal != nil {
		journalID = out.Journal.ID.String()
	}
	query.Set("journal_id", journalID)

	state := StateFinishStudent
	if isTeacher {
		state = StateFinishTeacher
	}
	query.Set("launch_state", string(state))
	return &Resolution{State: state, Query: query}, nil
}

func setCoursePrefill(query url.Values, course *lti.CourseClaims) {
	query.Set("course_name", course.Title)
	query.Set("course_abbreviation", course.Abbreviation)
	if course.Start != nil {
		query.Set("course_start", course.Start.Format(time.RFC3339))
	}
	if course.End != nil {
		query.Set("course_end", course.End.Format(time.RFC3339))
	}
}

func setAssignmentPrefill(query url.Values, assignment *lti.AssignmentClaims) {
	query.Set("assignment_name", assignment.Title)
	if assignment.Unlock != nil {
		query.Set("assignment_unlock", assignment.Unlock.Format(time.RFC3339))
	}
	if assignment.Due != nil {
		query.Set("assignment_due", assignment.Due.Format(time.RFC3339))
	}
	if assignment.Lock != nil {
		query.Set("assignment_lock", assignment.Lock.Format(time.RFC3339))
	}
	if assignment.PointsPossible != nil {
		query.Set("points_possible", strconv.FormatFloat(*assignment.PointsPossible, 'f', -1, 64))
	}
	if assignment.Published != nil {
		query.Set("assignment_published", strconv.FormatBool(*assignment.Published))
	}
}
