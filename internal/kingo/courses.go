package kingo

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/kingotools/capture/internal/capture"
)

// ParseCourseList extracts the course code → course name map from a term's
// course listing page.
func ParseCourseList(text string) map[string]string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		return nil
	}

	courses := make(map[string]string)
	doc.Find("select[name=Sel_KC] option").Each(func(_ int, sel *goquery.Selection) {
		code, ok := sel.Attr("value")
		if !ok || code == "" {
			return
		}
		courses[code] = strings.TrimSpace(sel.Text())
	})
	return courses
}

// CourseQueryForm builds the form body the course detail endpoint expects.
// The field set matches the site's own query page submission.
func CourseQueryForm(termCode, courseCode string) map[string]string {
	return map[string]string{
		"gs":       "2",
		"txt_yzm":  "",
		"Sel_XNXQ": termCode,
		"Sel_KC":   courseCode,
	}
}

// ParseCourseDetails converts a course query result page into a Course
// record: the page title carries "<code> <name>", each report table row one
// teaching unit.
func ParseCourseDetails(text string) (*capture.Course, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		return nil, fmt.Errorf("parse course page: %w", err)
	}

	title := strings.TrimSpace(doc.Find("td.page_title").First().Text())
	parts := strings.Fields(title)
	if len(parts) < 2 {
		return nil, fmt.Errorf("course page has no recognizable title %q", title)
	}

	course := &capture.Course{
		Code: parts[0],
		Name: strings.Join(parts[1:], " "),
	}

	doc.Find("table.page_table tr").Each(func(i int, row *goquery.Selection) {
		if i == 0 {
			return // header row
		}
		cells := row.Find("td")
		if cells.Length() < 4 {
			return
		}
		course.Classes = append(course.Classes, capture.CourseUnit{
			Name:      strings.TrimSpace(cells.Eq(0).Text()),
			Teacher:   strings.TrimSpace(cells.Eq(1).Text()),
			TimePoint: strings.TrimSpace(cells.Eq(2).Text()),
			Position:  strings.TrimSpace(cells.Eq(3).Text()),
		})
	})

	return course, nil
}
