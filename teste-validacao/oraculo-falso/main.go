package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

// Oráculo falso compatível com /chat/completions, para testar o gateway sem
// chave de API. FAKE_DELAY simula um provedor lento (ex: FAKE_DELAY=90s para
// ver o 504 do gateway).
func main() {
	delay, _ := time.ParseDuration(os.Getenv("FAKE_DELAY"))

	http.HandleFunc("/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Messages) == 0 {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":{"message":"invalid request"}}`)
			return
		}
		fmt.Printf("Log: pedido de conversão (model=%s, %d bytes)\n", req.Model, len(req.Messages[0].Content))

		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				fmt.Println("Log: cliente desistiu antes da resposta")
				return
			}
		}

		var b strings.Builder
		b.WriteString("apiVersion: run.ai/v2alpha1\nkind: TrainingWorkload\nspec:\n")
		for _, line := range strings.Split(req.Messages[0].Content, "\n") {
			if strings.HasPrefix(strings.TrimSpace(line), "#SBATCH") {
				b.WriteString("  # " + strings.TrimSpace(line) + "\n")
			}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": b.String()}},
			},
		})
	})

	fmt.Println("Oráculo falso rodando em http://localhost:8081/chat/completions")
	err := http.ListenAndServe(":8081", nil)
	if err != nil {
		fmt.Printf("Erro ao subir o servidor: %s\n", err)
	}
}
