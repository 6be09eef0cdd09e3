package lms

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// AGS 的 gradingProgress 狀態
// 參考 https://www.imsglobal.org/spec/lti-ags/v2p0#gradingprogress
const (
	GradingNoSubmission = "NotReady"
	GradingNeedsGrading = "PendingManual"
	GradingFinished     = "FullyGraded"
)

// AGS 的 activityProgress 狀態
// 參考 https://www.imsglobal.org/spec/lti-ags/v2p0#activityprogress
const (
	ActivityNoSubmission = "Initialized"
	ActivityFinished     = "Completed"
)

// Score 是一筆要發佈到 AGS 的成績
// SubmissionData 是 Canvas 擴充：把日誌的 launch 網址掛在成績上，
// 讓教師能從 gradebook 直接跳回對應的日誌
type Score struct {
	UserID           string
	ScoreGiven       *float64
	ScoreMaximum     *float64
	ActivityProgress string
	GradingProgress  string
	Timestamp        time.Time
	SubmissionData   string
}

const scoreMediaType = "application/vnd.ims.lis.v1.score+json"

// canvasSubmissionClaim 是 Canvas 的 submission 擴充 claim
const canvasSubmissionClaim = "https://canvas.instructure.com/lti/submission"

// gradesService 是 launch claim 裡 AGS 端點的形狀
type gradesService struct {
	LineItem string `json:"lineitem"`
}

// PublishScore 把成績 POST 到 AGS 的 scores 子端點
func (c *Client) PublishScore(ctx context.Context, serviceRaw, accessToken string, score Score) error {
	const op = "Client.PublishScore"

	var service gradesService
	if err := json.Unmarshal([]byte(serviceRaw), &service); err != nil {
		return fmt.Errorf("[%s] Fail to parse grades service claim, err=%w", op, err)
	}
	if service.LineItem == "" {
		return fmt.Errorf("[%s] Grades service claim has no lineitem", op)
	}

	payload := map[string]any{
		"userId":           score.UserID,
		"activityProgress": score.ActivityProgress,
		"gradingProgress":  score.GradingProgress,
		"timestamp":        score.Timestamp.Format("2006-01-02T15:04:05+00:00"),
	}
	if score.ScoreGiven != nil {
		payload["scoreGiven"] = *score.ScoreGiven
	}
	if score.ScoreMaximum != nil {
		payload["scoreMaximum"] = *score.ScoreMaximum
	}
	if score.SubmissionData != "" {
		payload[canvasSubmissionClaim] = map[string]any{
			"submission_type": "basic_lti_launch",
			"submission_data": score.SubmissionData,
		}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("[%s] Fail to marshal score, err=%w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, service.LineItem+"/scores", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("[%s] Fail to create score request, err=%w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", scoreMediaType)

	if _, err := c.do(req); err != nil {
		return fmt.Errorf("[%s] Fail to publish score, err=%w", op, err)
	}
	return nil
}

// Basic Outcomes 的 POX envelope
// 參考 https://www.imsglobal.org/specs/ltiomv1p0
type poxEnvelope struct {
	XMLName xml.Name  `xml:"imsx_POXEnvelopeRequest"`
	Xmlns   string    `xml:"xmlns,attr"`
	Header  poxHeader `xml:"imsx_POXHeader"`
	Body    poxBody   `xml:"imsx_POXBody"`
}

type poxHeader struct {
	Info poxHeaderInfo `xml:"imsx_POXRequestHeaderInfo"`
}

type poxHeaderInfo struct {
	Version   string `xml:"imsx_version"`
	MessageID string `xml:"imsx_messageIdentifier"`
}

type poxBody struct {
	Request poxReplaceResult `xml:"replaceResultRequest"`
}

type poxReplaceResult struct {
	Record poxResultRecord `xml:"resultRecord"`
}

type poxResultRecord struct {
	SourcedGUID poxSourcedGUID `xml:"sourcedGUID"`
	Result      *poxResult     `xml:"result,omitempty"`
}

type poxSourcedGUID struct {
	SourcedID string `xml:"sourcedId"`
}

type poxResult struct {
	Score poxResultScore `xml:"resultScore"`
}

type poxResultScore struct {
	Language   string `xml:"language"`
	TextString string `xml:"textString"`
}

// ReplaceResult 以 Basic Outcomes 的 replaceResult 回傳成績
// 請求本體是 XML，OAuth1 簽章帶 body hash。score 為 nil 時只送座標，
// 用來清空 LMS 端的成績
func (c *Client) ReplaceResult(ctx context.Context, outcomeURL, sourcedid string, score *float64) error {
	const op = "Client.ReplaceResult"

	envelope := poxEnvelope{
		Xmlns: "http://www.imsglobal.org/services/ltiv1p1/xsd/imsoms_v1p0",
		Header: poxHeader{
			Info: poxHeaderInfo{
				Version:   "V1.0",
				MessageID: uuid.NewString(),
			},
		},
		Body: poxBody{
			Request: poxReplaceResult{
				Record: poxResultRecord{
					SourcedGUID: poxSourcedGUID{SourcedID: sourcedid},
				},
			},
		},
	}
	if score != nil {
		envelope.Body.Request.Record.Result = &poxResult{
			Score: poxResultScore{
				Language:   "en",
				TextString: strconv.FormatFloat(*score, 'f', -1, 64),
			},
		}
	}

	body, err := xml.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("[%s] Fail to marshal replace result envelope, err=%w", op, err)
	}
	body = append([]byte(xml.Header), body...)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, outcomeURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("[%s] Fail to create replace result request, err=%w", op, err)
	}
	req.Header.Set("Content-Type", "application/xml")
	c.consumer.Sign(req, body, uuid.NewString(), time.Now())

	if _, err := c.do(req); err != nil {
		return fmt.Errorf("[%s] Fail to send replace result, err=%w", op, err)
	}
	return nil
}
