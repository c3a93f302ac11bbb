// Package catalog looks up course sections from the university class
// catalog API.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/daniel-c5656/ai-dvisor/internal/plan"
)

// ErrNotFound is returned when the term, course, or section does not exist
// in the catalog.
var ErrNotFound = errors.New("catalog entry not found")

// Client is an HTTP client for the class catalog API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a catalog client. A nil httpClient gets a default with
// a request timeout.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

type courseResponse struct {
	Name        string            `json:"name"`
	CourseUnits []float64         `json:"courseUnits"`
	Sections    []sectionResponse `json:"sections"`
}

type sectionResponse struct {
	SisSectionID string            `json:"sisSectionId"`
	RnrMode      string            `json:"rnrMode"`
	Schedule     []scheduleEntry   `json:"schedule"`
	Instructors  []plan.Instructor `json:"instructors"`
}

type scheduleEntry struct {
	Days      []string `json:"days"`
	StartTime string   `json:"startTime"`
	EndTime   string   `json:"endTime"`
	Location  string   `json:"location"`
}

// FindSection fetches a course from the catalog and extracts the section
// with the given id as a CourseSection. Returns ErrNotFound when the term,
// course, or section does not exist.
func (c *Client) FindSection(ctx context.Context, termCode, courseCode, sectionID string) (plan.CourseSection, error) {
	q := url.Values{}
	q.Set("termCode", termCode)
	q.Set("courseCode", courseCode)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/Courses/Course?"+q.Encode(), nil)
	if err != nil {
		return plan.CourseSection{}, fmt.Errorf("build catalog request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return plan.CourseSection{}, fmt.Errorf("catalog request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 || resp.StatusCode == http.StatusNoContent {
		return plan.CourseSection{}, ErrNotFound
	}

	var course courseResponse
	if err := json.NewDecoder(resp.Body).Decode(&course); err != nil {
		return plan.CourseSection{}, fmt.Errorf("decode catalog response: %w", err)
	}

	for _, section := range course.Sections {
		if section.SisSectionID != sectionID {
			continue
		}
		if len(section.Schedule) == 0 {
			return plan.CourseSection{}, fmt.Errorf("section %s has no schedule", sectionID)
		}
		var units float64
		if len(course.CourseUnits) > 0 {
			units = course.CourseUnits[0]
		}
		meeting := section.Schedule[0]
		return plan.CourseSection{
			SectionID:   sectionID,
			CourseCode:  courseCode,
			CourseName:  course.Name,
			Type:        section.RnrMode,
			Days:        meeting.Days,
			StartTime:   meeting.StartTime,
			EndTime:     meeting.EndTime,
			Location:    meeting.Location,
			Units:       units,
			Instructors: section.Instructors,
		}, nil
	}
	return plan.CourseSection{}, ErrNotFound
}
