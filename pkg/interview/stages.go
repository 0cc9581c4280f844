package interview

import (
	"context"
	"time"
)

// Stage kinds understood by StageFor.
const (
	KindIntro      = "intro"
	KindExperience = "experience"
)

// Reactions is the default stage behaviour: acknowledge Q2, ignore idle and timeout.
// Stages embed it and override what they need.
type Reactions struct{}

func (Reactions) OnQ2Answered(ctx context.Context, a *Agent) {
	_ = a.Say(ctx, a.Script().AckQ2, false)
}

func (Reactions) OnBothAnsweredIdle(context.Context, *Agent) {}

func (Reactions) OnStageTimeout(context.Context, *Agent) {}

// IntroStage hands off to the next stage once both questions are answered or time runs out.
type IntroStage struct {
	Reactions
}

func (IntroStage) OnQ2Answered(_ context.Context, a *Agent) { a.Handoff() }

func (IntroStage) OnStageTimeout(_ context.Context, a *Agent) { a.Handoff() }

// ClosingLines are the three ways the last stage can end the interview.
type ClosingLines struct {
	Answered string `mapstructure:"answered"`
	Idle     string `mapstructure:"idle"`
	Timeout  string `mapstructure:"timeout"`
}

// ExperienceStage closes the interview. It announces itself with stage_changed on entry.
type ExperienceStage struct {
	Reactions
	Closing ClosingLines
}

func (s ExperienceStage) OnQ2Answered(_ context.Context, a *Agent) { a.Close(s.Closing.Answered) }

func (s ExperienceStage) OnBothAnsweredIdle(_ context.Context, a *Agent) { a.Close(s.Closing.Idle) }

func (s ExperienceStage) OnStageTimeout(_ context.Context, a *Agent) { a.Close(s.Closing.Timeout) }

func (ExperienceStage) OnEntered(ctx context.Context, a *Agent) { a.PublishStageChanged(ctx) }

// StageDefinition pairs the spoken material of a stage with its reactions.
type StageDefinition struct {
	Script Script
	Stage  Stage
}

// StageFor returns the reactions for a stage kind.
func StageFor(kind string, closing ClosingLines) (Stage, bool) {
	switch kind {
	case KindIntro:
		return IntroStage{}, true
	case KindExperience:
		return ExperienceStage{Closing: DefaultClosingLines().merge(closing)}, true
	default:
		return nil, false
	}
}

func IntroScript() Script {
	return Script{
		Stage:    KindIntro,
		Greeting: "Hi, welcome to your mock interview. What's your name, and what are you hoping to get out of this interview?",
		AckQ1:    "Got it, thank you. Tell me about one project you built that you're proud of, and what you personally contributed.",
		AckQ2:    "Thanks for sharing that.",
		NudgeQ1:  "Feel free to take your time.",
		NudgeQ2:  "Whenever you're ready.",
		ReaskQ1:  "No problem, what's your name, and what are you hoping to get out of this interview?",
		Timeout:  60 * time.Second,
	}
}

func ExperienceScript() Script {
	return Script{
		Stage:    KindExperience,
		Greeting: "Great, now let's move to the experience section. Can you tell me about your work experience so far?",
		AckQ1:    "Thanks for sharing. What was the biggest challenge you've faced in your work, and how did you handle it?",
		AckQ2:    "Thank you, really appreciate that.",
		NudgeQ1:  "Feel free to take your time.",
		NudgeQ2:  "Whenever you're ready.",
		ReaskQ1:  "No problem, can you tell me about your work experience so far?",
		Timeout:  180 * time.Second,
	}
}

func DefaultClosingLines() ClosingLines {
	return ClosingLines{
		Answered: "Thank you so much for your time today, it was a pleasure speaking with you. Best of luck with everything, and we'll be in touch soon. Take care! Please press End Call",
		Idle:     "That's everything from me, please click End Call whenever you're ready.",
		Timeout:  "I'm sorry to interrupt, we've run out of time. Thank you so much for your time today. Best of luck. Take care!",
	}
}

// merge overrides c with the non-empty lines of o.
func (c ClosingLines) merge(o ClosingLines) ClosingLines {
	if o.Answered != "" {
		c.Answered = o.Answered
	}
	if o.Idle != "" {
		c.Idle = o.Idle
	}
	if o.Timeout != "" {
		c.Timeout = o.Timeout
	}
	return c
}

// DefaultPlan is the two-stage interview: introduction, then experience.
func DefaultPlan() []StageDefinition {
	return []StageDefinition{
		{Script: IntroScript(), Stage: IntroStage{}},
		{Script: ExperienceScript(), Stage: ExperienceStage{Closing: DefaultClosingLines()}},
	}
}
