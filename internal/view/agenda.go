package view

import "github.com/msageha/tasktxt/internal/todotxt"

// Agenda shows visible tasks that have a due date.
type Agenda struct{}

func (Agenda) Name() string { return "agenda" }

func (Agenda) Tasks(snapshot []*todotxt.Task, p Policy, today todotxt.Date) []*todotxt.Task {
	return filter(snapshot, func(t *todotxt.Task) bool {
		return !t.DueDate.IsZero() && p.Visible(t, today)
	})
}

// Bucket is one agenda section.
type Bucket struct {
	Title string
	Tasks []*todotxt.Task
}

const (
	BucketPast     = "Past"
	BucketToday    = "Today"
	BucketTomorrow = "Tomorrow"
	BucketWeek     = "This week"
	BucketMonth    = "This month"
	BucketLater    = "Later"
)

// AgendaBuckets groups tasks by due date relative to today. Weeks end on
// Sunday. Tasks without a due date are skipped and empty buckets are
// omitted; order within a bucket is kept.
func AgendaBuckets(tasks []*todotxt.Task, today todotxt.Date) []Bucket {
	titles := []string{BucketPast, BucketToday, BucketTomorrow, BucketWeek, BucketMonth, BucketLater}
	grouped := make(map[string][]*todotxt.Task, len(titles))

	endOfWeek := today.AddDays((7 - int(today.Weekday())) % 7)
	for _, t := range tasks {
		if t.DueDate.IsZero() {
			continue
		}
		title := bucketOf(t.DueDate, today, endOfWeek)
		grouped[title] = append(grouped[title], t)
	}

	var out []Bucket
	for _, title := range titles {
		if len(grouped[title]) > 0 {
			out = append(out, Bucket{Title: title, Tasks: grouped[title]})
		}
	}
	return out
}

func bucketOf(due, today, endOfWeek todotxt.Date) string {
	switch days := today.DaysUntil(due); {
	case days < 0:
		return BucketPast
	case days == 0:
		return BucketToday
	case days == 1:
		return BucketTomorrow
	case !due.After(endOfWeek):
		return BucketWeek
	case due.Year() == today.Year() && due.Month() == today.Month():
		return BucketMonth
	default:
		return BucketLater
	}
}

// ByName resolves the view names the CLI accepts. project, context and
// hashtag need arg as the name to match; search uses it as the query.
func ByName(name, arg string) (View, bool) {
	switch name {
	case "inbox", "":
		return Inbox{}, true
	case "agenda":
		return Agenda{}, true
	case "flag":
		return Flag{}, true
	case "done":
		return Done{}, true
	case "search":
		return Search{Query: arg}, true
	case "project":
		return Project(arg), arg != ""
	case "context":
		return Context(arg), arg != ""
	case "hashtag":
		return Hashtag(arg), arg != ""
	}
	return nil, false
}
