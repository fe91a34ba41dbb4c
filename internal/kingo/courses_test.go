package kingo

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseCourseList(t *testing.T) {
	t.Parallel()

	courses := ParseCourseList(`<html><body>
<select name="Sel_KC">
<option value="">全部课程</option>
<option value="B001">高等数学</option>
<option value="B002">大学英语</option>
</select>
</body></html>`)
	require.Equal(t, map[string]string{
		"B001": "高等数学",
		"B002": "大学英语",
	}, courses)
}

func TestCourseQueryForm(t *testing.T) {
	t.Parallel()

	form := CourseQueryForm("20251", "B001")
	require.Equal(t, map[string]string{
		"gs":       "2",
		"txt_yzm":  "",
		"Sel_XNXQ": "20251",
		"Sel_KC":   "B001",
	}, form)
}

func TestParseCourseDetails(t *testing.T) {
	t.Parallel()

	course, err := ParseCourseDetails(`<html><body>
<table><tr><td class="page_title">B001 高等数学</td></tr></table>
<table class="page_table">
<tr><td>班级</td><td>教师</td><td>时间</td><td>地点</td></tr>
<tr><td>高数01班</td><td>张老师</td><td>周一1-2节</td><td>教1-101</td></tr>
<tr><td>高数02班</td><td>李老师</td><td>周三3-4节</td><td>教1-102</td></tr>
</table>
</body></html>`)
	require.NoError(t, err)
	require.Equal(t, "B001", course.Code)
	require.Equal(t, "高等数学", course.Name)
	require.Len(t, course.Classes, 2)
	require.Equal(t, "高数01班", course.Classes[0].Name)
	require.Equal(t, "张老师", course.Classes[0].Teacher)
	require.Equal(t, "周一1-2节", course.Classes[0].TimePoint)
	require.Equal(t, "教1-101", course.Classes[0].Position)
}

func TestParseCourseDetails_ShortRowsSkipped(t *testing.T) {
	t.Parallel()

	course, err := ParseCourseDetails(`<html><body>
<table><tr><td class="page_title">B002 大学英语</td></tr></table>
<table class="page_table">
<tr><td>班级</td><td>教师</td><td>时间</td><td>地点</td></tr>
<tr><td colspan="4">无排课数据</td></tr>
</table>
</body></html>`)
	require.NoError(t, err)
	require.Equal(t, "B002", course.Code)
	require.Empty(t, course.Classes)
}

func TestParseCourseDetails_MissingTitleFails(t *testing.T) {
	t.Parallel()

	_, err := ParseCourseDetails("<html><body>error page</body></html>")
	require.Error(t, err)
}
