package practicesession_test

import (
	"testing"
	"time"

	practicesession "github.com/remaimber-it/drivetheory/internal/domain/practice_session"
)

func TestTimeLimit(t *testing.T) {
	cases := []struct {
		mode      practicesession.Mode
		questions int
		want      time.Duration
	}{
		{practicesession.ModeMockExam, 20, 25 * time.Minute},
		{practicesession.ModeMarathon, 50, 60 * time.Minute},
		{practicesession.ModeMarathon, 150, 180 * time.Minute},
		{practicesession.ModeMarathon, 70, 70 * time.Minute},
		{practicesession.ModeTopicPractice, 10, 5 * time.Minute},
		{practicesession.ModeTopicPractice, 40, 10 * time.Minute},
	}
	for _, c := range cases {
		if got := practicesession.TimeLimit(c.mode, c.questions); got != c.want {
			t.Errorf("TimeLimit(%s, %d) = %v, want %v", c.mode, c.questions, got, c.want)
		}
	}
}

func TestPassMark(t *testing.T) {
	if got := practicesession.PassMark(practicesession.ModeMockExam, 20); got != 90 {
		t.Errorf("expected mock exam pass mark 90, got %d", got)
	}
	if got := practicesession.PassMark(practicesession.ModeMarathon, 100); got != 80 {
		t.Errorf("expected marathon pass mark 80, got %d", got)
	}
}

func answerN(s *practicesession.Session, correct, incorrect int) {
	i := 0
	for ; i < correct; i++ {
		s.Answer(s.Questions[i].ID, "ok", true, startedAt)
	}
	for ; i < correct+incorrect; i++ {
		s.Answer(s.Questions[i].ID, "bad", false, startedAt)
	}
}

func TestShouldStop_MockExamMistakeLimit(t *testing.T) {
	s := newSession(practicesession.ModeMockExam, makeIDs(20)...)
	answerN(s, 5, 2)
	if _, stop := practicesession.ShouldStop(s); stop {
		t.Fatal("expected exam to continue with two mistakes")
	}

	answerN(s, 5, 3)
	reason, stop := practicesession.ShouldStop(s)
	if !stop || reason != practicesession.FinishMistakeLimit {
		t.Errorf("expected mistake_limit stop, got %q %v", reason, stop)
	}
}

func TestShouldStop_AllAnswered(t *testing.T) {
	s := newSession(practicesession.ModeMarathon, makeIDs(3)...)
	answerN(s, 1, 2)
	reason, stop := practicesession.ShouldStop(s)
	if !stop || reason != practicesession.FinishCompleted {
		t.Errorf("expected completed stop, got %q %v", reason, stop)
	}
}

func TestEvaluate_MockExam(t *testing.T) {
	s := newSession(practicesession.ModeMockExam, makeIDs(20)...)
	answerN(s, 18, 2)

	r := practicesession.Evaluate(s, practicesession.FinishCompleted)
	if !r.Passed || r.Percent != 90 || r.PassMark != 90 {
		t.Errorf("unexpected result %+v", r)
	}

	timedOut := practicesession.Evaluate(s, practicesession.FinishTimeout)
	if timedOut.Passed {
		t.Error("expected a timed out exam to fail")
	}
}

func TestEvaluate_TopicPractice(t *testing.T) {
	s := newSession(practicesession.ModeTopicPractice, makeIDs(10)...)
	answerN(s, 7, 3)

	r := practicesession.Evaluate(s, "")
	if r.Passed || r.Percent != 70 || r.Reason != practicesession.FinishCompleted {
		t.Errorf("unexpected result %+v", r)
	}
}
