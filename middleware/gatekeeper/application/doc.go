// Package application contém os casos de uso do gatekeeper: assinatura e
// verificação de requisições, orquestração verificador -> cota -> oráculo,
// throttle de rajada e limite de concorrência.
//
// Ele depende apenas do pacote domain e não conhece net/http.
// Ex.: Gatekeeper.Handle(ctx, in) devolve a saída do oráculo ou um *domain.Failure.
package application
