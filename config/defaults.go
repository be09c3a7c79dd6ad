package config

import "time"

const (
	DefaultListen          = "127.0.0.1:5000"
	DefaultShutdownTimeout = 5 * time.Second
	DefaultGracePeriod     = 5 * time.Second
	DefaultPollInterval    = 100 * time.Millisecond
	DefaultDrainTimeout    = 5 * time.Second
	DefaultKeepAlive       = 15 * time.Second
	DefaultPromptTimeout   = 10 * time.Minute
	DefaultReplayLines     = 200
	DefaultArtifactMaxAge  = 30 * 24 * time.Hour
)

// DefaultOperations mirrors the routines the automation script exposes.
func DefaultOperations() map[string]Operation {
	return map[string]Operation{
		"solicitar-tcs": {
			Description: "Request CT exams (emergency, outpatient, inpatient)",
			Steps: []Step{
				{Args: []string{"-eae"}},
				{Args: []string{"-eas"}},
				{Args: []string{"-ear"}},
			},
		},
		"buscar-pendentes": {
			Description: "Fetch pending hospitalization requests",
			Steps: []Step{
				{Args: []string{"-aihs"}},
			},
		},
		"internacoes-solicitar": {
			Description: "Submit hospitalization requests",
			Steps: []Step{
				{Args: []string{"-spa"}, Interactive: true},
				{Args: []string{"-sia"}},
				{Args: []string{"-ssr"}},
				{Args: []string{"-snt"}},
			},
		},
	}
}

// DefaultPromptRules are the prompt shapes the automation script prints.
func DefaultPromptRules() []PromptRule {
	return []PromptRule{
		{
			Name: "attention-command",
			Patterns: []string{
				`(⚠|❗|👉|⏸|>>>)`,
				`\b(digite|type|informe)\b`,
				`(comando|command|\(?s/n\)?|\(?y/n\)?|sim/n(ã|a)o)`,
			},
		},
		{
			Name: "awaiting-user",
			Patterns: []string{
				`(aguardando intera(ç|c)(ã|a)o|awaiting interaction|waiting for interaction)`,
				`(usu(á|a)rio|user)`,
			},
		},
		{
			Name: "press-enter-choice",
			Patterns: []string{
				`\b(digite|type)\b`,
				`(pressione|press) enter`,
				`(['"\[(]\s*[a-z]\s*['"\])])`,
			},
		},
	}
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.Version == "" {
		c.Version = "1.0"
	}
	if c.Server.Listen == "" {
		c.Server.Listen = DefaultListen
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.Process.GracePeriod == 0 {
		c.Process.GracePeriod = DefaultGracePeriod
	}
	if c.Process.PollInterval == 0 {
		c.Process.PollInterval = DefaultPollInterval
	}
	if c.Process.DrainTimeout == 0 {
		c.Process.DrainTimeout = DefaultDrainTimeout
	}
	if c.Stream.KeepAlive == 0 {
		c.Stream.KeepAlive = DefaultKeepAlive
	}
	if c.Stream.PromptTimeout == 0 {
		c.Stream.PromptTimeout = DefaultPromptTimeout
	}
	if c.Stream.ReplayLines == 0 {
		c.Stream.ReplayLines = DefaultReplayLines
	}
	if c.Flags.Dir == "" {
		c.Flags.Dir = c.Script.WorkDir
	}
	if c.Flags.Dir == "" {
		c.Flags.Dir = "."
	}
	if c.Flags.Pause == "" {
		c.Flags.Pause = "pause.flag"
	}
	if c.Flags.ForceSave == "" {
		c.Flags.ForceSave = "grava.flag"
	}
	if c.Flags.Skip == "" {
		c.Flags.Skip = "pula.flag"
	}
	if len(c.Prompts) == 0 {
		c.Prompts = DefaultPromptRules()
	}
	if len(c.Operations) == 0 {
		c.Operations = DefaultOperations()
	}
	if c.Artifacts.Dir == "" {
		c.Artifacts.Dir = c.Script.WorkDir
	}
	if len(c.Artifacts.Patterns) == 0 {
		c.Artifacts.Patterns = []string{"solicitacoes_exames_imprimir*.pdf"}
	}
	if c.Artifacts.MaxAge == 0 {
		c.Artifacts.MaxAge = DefaultArtifactMaxAge
	}
}
