package main

import (
	"fmt"
	"path/filepath"

	"github.com/grovetools/tend/pkg/assert"
	"github.com/grovetools/tend/pkg/fs"
	"github.com/grovetools/tend/pkg/harness"
)

// VersionScenario tests the 'version' command.
func VersionScenario() *harness.Scenario {
	return &harness.Scenario{
		Name: "autoreg-basic-version",
		Tags: []string{"cli"},
		Steps: []harness.Step{
			harness.NewStep("Run 'autoreg version'", func(ctx *harness.Context) error {
				bin, err := findAutoregBinary()
				if err != nil {
					return err
				}

				cmd := ctx.Command(bin, "version")
				result := cmd.Run()
				ctx.ShowCommandOutput(cmd.String(), result.Stdout, result.Stderr)

				if err := assert.Equal(0, result.ExitCode, "autoreg version should exit successfully"); err != nil {
					return err
				}
				if err := assert.Contains(result.Stdout, "Version:", "Output should contain Version"); err != nil {
					return err
				}
				return assert.Contains(result.Stdout, "Commit:", "Output should contain Commit")
			}),
		},
	}
}

// ConfigValidateScenario checks that a project config loads and that a
// broken one is rejected with a schema error.
func ConfigValidateScenario() *harness.Scenario {
	return &harness.Scenario{
		Name:        "autoreg-config-validate",
		Description: "Loads a valid autoreg.yml and rejects an invalid one.",
		Tags:        []string{"cli", "config"},
		Steps: []harness.Step{
			harness.NewStep("Validate a good config", func(ctx *harness.Context) error {
				bin, err := findAutoregBinary()
				if err != nil {
					return err
				}
				cfgPath, err := writeProject(ctx, "good", "127.0.0.1:5999")
				if err != nil {
					return err
				}

				cmd := ctx.Command(bin, "config", "validate", "--config", cfgPath)
				result := cmd.Run()
				ctx.ShowCommandOutput(cmd.String(), result.Stdout, result.Stderr)
				if err := assert.Equal(0, result.ExitCode, "valid config should pass"); err != nil {
					return err
				}
				return assert.Contains(result.Stdout, "3 operations", "operations should be counted")
			}),
			harness.NewStep("Reject an unknown setting", func(ctx *harness.Context) error {
				bin, err := findAutoregBinary()
				if err != nil {
					return err
				}
				dir := ctx.NewDir("bad")
				cfgPath := filepath.Join(dir, "autoreg.yml")
				if err := fs.WriteString(cfgPath, "server:\n  listne: 127.0.0.1:5000\n"); err != nil {
					return err
				}

				cmd := ctx.Command(bin, "config", "validate", "--config", cfgPath)
				result := cmd.Run()
				ctx.ShowCommandOutput(cmd.String(), result.Stdout, result.Stderr)
				if result.ExitCode == 0 {
					return fmt.Errorf("invalid config was accepted")
				}
				return assert.Contains(result.Stderr, "schema validation failed", "schema error should be reported")
			}),
		},
	}
}

// ConfigLegacyEnvScenario checks that the script's KEY = value env file is
// layered under an empty project config.
func ConfigLegacyEnvScenario() *harness.Scenario {
	return &harness.Scenario{
		Name: "autoreg-config-legacy-env",
		Tags: []string{"cli", "config"},
		Steps: []harness.Step{
			harness.NewStep("Show config built from env file", func(ctx *harness.Context) error {
				bin, err := findAutoregBinary()
				if err != nil {
					return err
				}
				dir := ctx.NewDir("legacy")
				if err := fs.WriteString(filepath.Join(dir, "autoreg.yml"), "version: \"1.0\"\n"); err != nil {
					return err
				}
				if err := fs.WriteString(filepath.Join(dir, "env"), "AUTOREGPATH = /opt/autoreg/autoreg.py\nDOCKER = docker exec -it autoreg-legacy bash\nUSE_DOCKER = sim\n"); err != nil {
					return err
				}

				cmd := ctx.Command(bin, "config", "show").Dir(dir)
				result := cmd.Run()
				ctx.ShowCommandOutput(cmd.String(), result.Stdout, result.Stderr)
				if err := assert.Equal(0, result.ExitCode, "config show should succeed"); err != nil {
					return err
				}
				if err := assert.Contains(result.Stdout, "/opt/autoreg/autoreg.py", "entry point should come from the env file"); err != nil {
					return err
				}
				return assert.Contains(result.Stdout, "autoreg-legacy", "container name should come from the env file")
			}),
		},
	}
}
