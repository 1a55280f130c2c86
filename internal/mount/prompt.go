package mount

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Mmeadows3/clai/internal/catalog"
	"github.com/Mmeadows3/clai/internal/definition"
)

// PromptResponseHint is prepended to every prompt contract's rendered
// text so the calling LM treats it as instructions, not a final answer.
const PromptResponseHint = "Tool behavior: this tool does not execute the task. " +
	"It only returns instructions for you (the calling LM) to follow using other tools."

// PromptPrePrompt is attached to prompt contracts that declare no
// pre-prompt of their own.
const PromptPrePrompt = "Prompt tool: treat `text` as execution instructions, not a final answer."

// mountPrompt builds one prompt contract from an inline template or a
// markdown file next to the definition.
func (m *Mounter) mountPrompt(raw *definition.RawDefinition) (*catalog.Contract, *definition.MountingError) {
	template := raw.Template

	if strings.TrimSpace(template) == "" {
		ref := strings.TrimSpace(raw.ImplementationRef)
		if ref == "" {
			return nil, definition.NewMountingError(raw.Name, raw.SourcePath, definition.ReasonSchemaInvalid,
				"prompt definition requires an inline template or implementation_ref naming a template file")
		}

		templatePath := ref
		if !filepath.IsAbs(templatePath) {
			templatePath = filepath.Join(filepath.Dir(raw.SourcePath), templatePath)
		}

		// #nosec G304 -- path comes from definition discovery, not direct user input
		data, err := os.ReadFile(templatePath)
		if err != nil {
			return nil, definition.NewMountingError(raw.Name, raw.SourcePath, definition.ReasonUnresolvedImplementation,
				fmt.Sprintf("template %q not found: %v", ref, err))
		}
		template = string(data)
	}

	kind := definition.KindPromptExtension

	invoke := func(_ context.Context, args map[string]any, _ catalog.CallFunc) (map[string]any, error) {
		encoded, err := json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("failed to encode prompt input: %w", err)
		}

		text := fmt.Sprintf("%s\n\n%s\n\n---\ninput: %s", PromptResponseHint, template, encoded)
		return map[string]any{
			"text":  text,
			"input": args,
			"kind":  string(kind),
		}, nil
	}

	contract := newContract(raw, kind, invoke)
	if contract.PrePrompt == "" {
		contract.PrePrompt = PromptPrePrompt
	}
	if len(contract.Outputs) == 0 {
		contract.Outputs = map[string]string{
			"text":  "Rendered prompt instructions for the caller to follow.",
			"input": "The structured input echoed back.",
			"kind":  "The tool kind that produced the text.",
		}
	}
	return contract, nil
}
