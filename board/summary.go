package board

import (
	"fmt"
	"math"
	"time"

	"taskflow/domain"
)

// Summary is the dashboard digest of the unfiltered board.
type Summary struct {
	Total         int    `json:"total"`
	Todo          int    `json:"todo"`
	Doing         int    `json:"doing"`
	Done          int    `json:"done"`
	Mine          int    `json:"mine"`
	Progress      int    `json:"progress"`
	ProgressLabel string `json:"progressLabel"`
	Greeting      string `json:"greeting,omitempty"`
}

// Summarize counts tasks per status and for actor, and derives the completion label.
func Summarize(tasks []domain.Task, actor domain.Actor) Summary {
	s := Summary{Total: len(tasks)}
	for _, t := range tasks {
		switch t.Status {
		case domain.StatusTodo:
			s.Todo++
		case domain.StatusDoing:
			s.Doing++
		case domain.StatusDone:
			s.Done++
		}
		if t.AssignedTo(actor.ID) {
			s.Mine++
		}
	}
	if s.Total == 0 {
		return s
	}
	s.Progress = int(math.Round(float64(s.Done) / float64(s.Total) * 100))
	switch {
	case s.Progress == 100:
		s.ProgressLabel = "All done!"
	case s.Progress >= 75:
		s.ProgressLabel = "Almost there"
	case s.Progress >= 50:
		s.ProgressLabel = "Halfway through"
	case s.Doing > 0:
		s.ProgressLabel = fmt.Sprintf("%d in progress", s.Doing)
	}
	return s
}

// Greeting returns the time-of-day salutation for t.
func Greeting(t time.Time) string {
	switch h := t.Hour(); {
	case h < 12:
		return "Good morning"
	case h < 17:
		return "Good afternoon"
	}
	return "Good evening"
}
