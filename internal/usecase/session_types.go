package usecase

import (
	"greenroom/internal/domain"
	"greenroom/internal/ports"
)

// interviewSession is the root aggregate for one attempt. It lives from
// a confirmed Begin until restart; exactly one exists at a time.
type interviewSession struct {
	id        string
	questions []domain.Question
	responses map[int]domain.Response
	index     int

	capture  ports.CaptureContext // nil when the camera was denied
	msgsDone chan struct{}
	summary  *domain.EmotionSummary
}

func (s *interviewSession) isLastQuestion() bool {
	return s.index == len(s.questions)-1
}

func (s *interviewSession) progress(phase domain.Phase) domain.Progress {
	total := len(s.questions)
	p := domain.Progress{
		Phase:          phase,
		QuestionIndex:  s.index,
		QuestionTotal:  total,
		IsLastQuestion: s.isLastQuestion(),
	}
	if total > 0 {
		p.Percent = len(s.responses) * 100 / total
		if s.index < total {
			p.Question = s.questions[s.index].Text
		}
	}
	return p
}
