package aggregate

import (
	"sort"
	"time"

	"khanevadati/internal/core"
)

const (
	DeadlineCheck = "check"
	DeadlineLoan  = "loan"
)

type Deadline struct {
	Kind    string       `json:"kind"`
	ID      string       `json:"id"`
	Title   string       `json:"title"`
	OwnerID core.OwnerID `json:"ownerId"`
	Amount  core.Money   `json:"amount"`
	DueDate core.Date    `json:"dueDate"`
}

// NextDueDate returns the next monthly due date for paymentDay on or after
// today. Days past the end of a month fall on its last day.
func NextDueDate(today core.Date, paymentDay int) core.Date {
	due := dayInMonth(today.Year(), today.Month(), paymentDay)
	if due.Before(today.Time) {
		due = dayInMonth(today.Year(), today.Month()+1, paymentDay)
	}
	return core.Date{Time: due}
}

func dayInMonth(year int, month time.Month, day int) time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	lastDay := first.AddDate(0, 1, -1).Day()
	if day > lastDay {
		day = lastDay
	}
	if day < 1 {
		day = 1
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)
}

// ComputeUpcomingDeadlines merges pending checks and unfinished loans by due
// date, earliest first, keeping at most limit entries when limit > 0.
func ComputeUpcomingDeadlines(s core.Snapshot, today core.Date, limit int) []Deadline {
	payees := make(map[string]string, len(s.Payees))
	for _, p := range s.Payees {
		payees[p.ID] = p.Name
	}

	out := []Deadline{}
	for _, c := range s.Checks {
		if c.Status != core.CheckPending {
			continue
		}
		title := payees[c.PayeeID]
		if title == "" {
			title = c.Description
		}
		out = append(out, Deadline{
			Kind: DeadlineCheck, ID: c.ID, Title: title, OwnerID: c.OwnerID,
			Amount: c.Amount, DueDate: c.DueDate,
		})
	}
	for _, l := range s.Loans {
		if l.PaidInstallments >= l.NumberOfInstallments {
			continue
		}
		out = append(out, Deadline{
			Kind: DeadlineLoan, ID: l.ID, Title: l.Title, OwnerID: l.OwnerID,
			Amount: l.InstallmentAmount, DueDate: NextDueDate(today, l.PaymentDay),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].DueDate.Equal(out[j].DueDate.Time) {
			return out[i].DueDate.Before(out[j].DueDate.Time)
		}
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
