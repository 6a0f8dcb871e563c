package infra

import (
	"context"
	"strings"

	"s2r-gateway/middleware/gatekeeper/domain"
)

// EchoOracle é um oráculo local, determinístico, para desenvolvimento.
// Devolve as diretivas #SBATCH encontradas como comentários YAML.
type EchoOracle struct{}

var _ domain.Oracle = EchoOracle{}

func (EchoOracle) Convert(ctx context.Context, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("# generated by EchoOracle (development only)\n")
	b.WriteString("apiVersion: run.ai/v2alpha1\nkind: TrainingWorkload\nspec:\n")
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "#SBATCH") {
			b.WriteString("  # ")
			b.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "#SBATCH")))
			b.WriteString("\n")
		}
	}
	return b.String(), nil
}
