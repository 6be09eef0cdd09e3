package lms

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"ejournal/adapters/lti"
)

// Member 是 NRPS 回傳的單一課程成員
type Member struct {
	UserID  string   `json:"user_id"`
	Status  string   `json:"status"`
	Name    string   `json:"name"`
	Email   string   `json:"email"`
	Picture string   `json:"picture"`
	SisID   string   `json:"lis_person_sourcedid"`
	Roles   []string `json:"roles"`
}

// Section 是 LMS 原生 API 回傳的課程分組
type Section struct {
	ID       json.Number      `json:"id"`
	Name     string           `json:"name"`
	Students []SectionStudent `json:"students"`
}

// SectionStudent 是分組內的學生
type SectionStudent struct {
	Username string `json:"login_id"`
	FullName string `json:"name"`
	SisID    string `json:"sis_user_id"`
}

// namesRoleService 是 launch claim 裡 NRPS 端點的形狀
type namesRoleService struct {
	ContextMembershipsURL string `json:"context_memberships_url"`
}

const membershipContainerMediaType = "application/vnd.ims.lti-nrps.v2.membershipcontainer+json"

// FetchMembers 透過 NRPS 取得課程成員，自動跟隨 Link 標頭的分頁
func (c *Client) FetchMembers(ctx context.Context, serviceRaw, accessToken string) ([]Member, error) {
	const op = "Client.FetchMembers"

	var service namesRoleService
	if err := json.Unmarshal([]byte(serviceRaw), &service); err != nil {
		return nil, fmt.Errorf("[%s] Fail to parse names role service claim, err=%w", op, err)
	}
	if service.ContextMembershipsURL == "" {
		return nil, fmt.Errorf("[%s] Names role service claim has no memberships url", op)
	}

	var members []Member
	next := service.ContextMembershipsURL
	for next != "" {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, next, nil)
		if err != nil {
			return nil, fmt.Errorf("[%s] Fail to create memberships request, err=%w", op, err)
		}
		req.Header.Set("Authorization", "Bearer "+accessToken)
		req.Header.Set("Accept", membershipContainerMediaType)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("[%s] Fail to send memberships request, err=%w", op, err)
		}

		page, link, err := decodeMembershipPage(resp, next)
		if err != nil {
			return nil, fmt.Errorf("[%s] %w", op, err)
		}
		members = append(members, page...)
		next = link
	}
	return members, nil
}

func decodeMembershipPage(resp *http.Response, endpoint string) ([]Member, string, error) {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", &lti.ExternalServiceError{Endpoint: endpoint, StatusCode: resp.StatusCode}
	}

	var container struct {
		Members []Member `json:"members"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&container); err != nil {
		return nil, "", fmt.Errorf("failed to decode membership container: %w", err)
	}
	return container.Members, nextLink(resp.Header.Get("Link")), nil
}

// nextLink 解析 RFC 8288 Link 標頭裡 rel="next" 的網址
func nextLink(header string) string {
	for _, part := range strings.Split(header, ",") {
		segments := strings.Split(strings.TrimSpace(part), ";")
		if len(segments) < 2 {
			continue
		}
		target := strings.Trim(strings.TrimSpace(segments[0]), "<>")
		for _, segment := range segments[1:] {
			if strings.EqualFold(strings.TrimSpace(segment), `rel="next"`) {
				return target
			}
		}
	}
	return ""
}

// FetchSections 抓取課程的分組與組內學生(Canvas 相容的 sections API)
func (c *Client) FetchSections(ctx context.Context, courseLmsID, accessToken string) ([]Section, error) {
	const op = "Client.FetchSections"

	endpoint := fmt.Sprintf("%s/api/v1/courses/%s/sections", c.apiBaseURL, url.PathEscape(courseLmsID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create sections request, err=%w", op, err)
	}
	query := req.URL.Query()
	query.Add("include[]", "students")
	query.Add("include[]", "total_students")
	req.URL.RawQuery = query.Encode()
	req.Header.Set("Authorization", "Bearer "+accessToken)

	body, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to fetch sections, err=%w", op, err)
	}

	var sections []Section
	if err := json.Unmarshal(body, &sections); err != nil {
		return nil, fmt.Errorf("[%s] Fail to decode sections response, err=%w", op, err)
	}
	return sections, nil
}
