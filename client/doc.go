// Package client é o lado que assina: lê o script, assina com o segredo
// compartilhado e envia ao gateway.
//
// A configuração vem de um arquivo TOML opcional (~/.config/s2r/config.toml ou
// S2R_CONFIG) sobrescrito por S2R_API_ENDPOINT, S2R_SHARED_SECRET e S2R_TIMEOUT.
package client
