package curriculum

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed lessons.yaml
var defaultLessons []byte

// Lesson is one stage of the curriculum.
type Lesson struct {
	Name            string  `yaml:"name" json:"name"`
	HiveRadius      float64 `yaml:"hive_radius" json:"hive_radius"`
	UseRadius       bool    `yaml:"use_radius" json:"use_radius"`
	RewardThreshold float64 `yaml:"reward_threshold" json:"reward_threshold"` // Ignored on the last lesson
}

// Params returns the curriculum parameters this lesson imposes.
func (l Lesson) Params() Params {
	return Params{HiveRadius: l.HiveRadius, UseRadius: l.UseRadius}
}

// Schedule is an ordered list of lessons and the rule for moving between them.
type Schedule struct {
	Window      int      `yaml:"window" json:"window"`             // Episodes averaged when measuring
	MinEpisodes int      `yaml:"min_episodes" json:"min_episodes"` // Episodes a lesson must run before it can graduate
	Lessons     []Lesson `yaml:"lessons" json:"lessons"`
}

// Decision is the outcome of evaluating a lesson against recent rewards.
type Decision struct {
	Lesson     int     `json:"lesson"`
	Advance    bool    `json:"advance"`
	MeanReward float64 `json:"mean_reward"`
	Episodes   int     `json:"episodes"`
	Reason     string  `json:"reason"`
}

// DefaultSchedule returns the embedded schedule.
func DefaultSchedule() Schedule {
	s, err := ParseSchedule(defaultLessons)
	if err != nil {
		panic(fmt.Sprintf("embedded lessons.yaml: %v", err))
	}
	return s
}

// LoadSchedule reads a YAML schedule from disk.
func LoadSchedule(path string) (Schedule, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Schedule{}, err
	}
	s, err := ParseSchedule(raw)
	if err != nil {
		return Schedule{}, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// ParseSchedule decodes and validates a YAML schedule.
func ParseSchedule(raw []byte) (Schedule, error) {
	var s Schedule
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return Schedule{}, fmt.Errorf("lessons yaml: %w", err)
	}
	if s.Window <= 0 {
		s.Window = 50
	}
	if err := s.Validate(); err != nil {
		return Schedule{}, err
	}
	return s, nil
}

// Validate checks that every lesson carries valid parameters.
func (s Schedule) Validate() error {
	if len(s.Lessons) == 0 {
		return fmt.Errorf("%w: schedule has no lessons", ErrInvalidParams)
	}
	for i, l := range s.Lessons {
		if err := l.Params().Validate(); err != nil {
			return fmt.Errorf("lesson %d (%s): %w", i, l.Name, err)
		}
	}
	return nil
}

// Clamp bounds a lesson index to the schedule.
func (s Schedule) Clamp(lesson int) int {
	if lesson < 0 {
		return 0
	}
	if lesson >= len(s.Lessons) {
		return len(s.Lessons) - 1
	}
	return lesson
}

// Params returns the parameters for a lesson index (clamped).
func (s Schedule) Params(lesson int) Params {
	return s.Lessons[s.Clamp(lesson)].Params()
}

// Evaluate decides whether the lesson should graduate given the episode
// rewards collected while it was active, oldest first.
func (s Schedule) Evaluate(lesson int, rewards []float64) Decision {
	lesson = s.Clamp(lesson)
	d := Decision{Lesson: lesson, Episodes: len(rewards)}

	window := rewards
	if len(window) > s.Window {
		window = window[len(window)-s.Window:]
	}
	if len(window) > 0 {
		sum := 0.0
		for _, r := range window {
			sum += r
		}
		d.MeanReward = sum / float64(len(window))
	}

	switch {
	case lesson == len(s.Lessons)-1:
		d.Reason = "final lesson"
	case len(rewards) < s.MinEpisodes || len(window) < s.Window:
		d.Reason = fmt.Sprintf("collecting episodes (%d/%d)", len(rewards), max(s.MinEpisodes, s.Window))
	case d.MeanReward < s.Lessons[lesson].RewardThreshold:
		d.Reason = fmt.Sprintf("mean reward %.3f below %.3f", d.MeanReward, s.Lessons[lesson].RewardThreshold)
	default:
		d.Advance = true
		d.Lesson = lesson + 1
		d.Reason = fmt.Sprintf("mean reward %.3f reached %.3f", d.MeanReward, s.Lessons[lesson].RewardThreshold)
	}
	return d
}

// Progress tracks an in-process run through a schedule and publishes each
// lesson's parameters to a Board.
type Progress struct {
	Schedule Schedule
	Lesson   int

	board   *Board
	rewards []float64
}

// NewProgress starts at the given lesson and publishes its parameters.
func NewProgress(s Schedule, lesson int, board *Board) (*Progress, error) {
	p := &Progress{Schedule: s, Lesson: s.Clamp(lesson), board: board}
	if err := board.Set(s.Params(p.Lesson)); err != nil {
		return nil, err
	}
	return p, nil
}

// Params returns the parameters of the current lesson.
func (p *Progress) Params() Params {
	return p.Schedule.Params(p.Lesson)
}

// Record adds one finished episode's reward and advances the lesson when the
// schedule allows it.
func (p *Progress) Record(reward float64) (Decision, error) {
	p.rewards = append(p.rewards, reward)
	if keep := max(p.Schedule.Window, p.Schedule.MinEpisodes); len(p.rewards) > keep {
		p.rewards = p.rewards[len(p.rewards)-keep:]
	}
	d := p.Schedule.Evaluate(p.Lesson, p.rewards)
	if !d.Advance {
		return d, nil
	}
	if err := p.board.Set(p.Schedule.Params(d.Lesson)); err != nil {
		return d, err
	}
	p.Lesson = d.Lesson
	p.rewards = p.rewards[:0]
	return d, nil
}
