// Package kingo implements the URL layout and page processors for the Kingo
// academic affairs site. Each processor converts one raw page into a domain
// record; the orchestration core stays parse-format-agnostic.
package kingo

import "strings"

// Site derives page addresses from the configured base URL.
type Site struct {
	base string
}

// NewSite builds a Site for a base URL such as "http://jwgl.example.edu.cn".
func NewSite(base string) Site {
	return Site{base: strings.TrimRight(base, "/")}
}

// LoginPage is the address of the session login form.
func (s Site) LoginPage() string {
	return s.base + "/_data/index_login.aspx"
}

// ClassQueryPage hosts the class info query form and the term selector.
func (s Site) ClassQueryPage() string {
	return s.base + "/znpk/Pri_StuSel.aspx"
}

// CourseListPage lists the courses offered in one term.
func (s Site) CourseListPage(termCode string) string {
	return s.base + "/znpk/Kc_List.aspx?sel_xnxq=" + termCode
}

// CourseQueryPage is the POST target answering per-course detail queries.
func (s Site) CourseQueryPage() string {
	return s.base + "/znpk/Pri_StuSel_rpt.aspx"
}
