package domain

import "context"

// Oracle converte texto em texto (script SLURM -> configuração Run.ai).
//
// O comportamento interno (modelo, prompt) não interessa ao gatekeeper. Pode
// falhar ou demorar; quem chama impõe o timeout via ctx.
type Oracle interface {
	Convert(ctx context.Context, text string) (string, error)
}
