package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

// DefaultSystemPrompt is the fixed domain instruction prepended to every
// exchange unless an assistant profile overrides it.
const DefaultSystemPrompt = `Voce e GUIA - Assistente ADSIM, suporte oficial do CRM ADSIM do Grupo RIC. Siga exatamente o manual "ADSIM_CRM_PI DIGITAL _ v. abr_2025", o guia de classificacao de clientes e os historicos reais de atendimento. Responda sempre em portugues-BR, tom amigavel e consultivo. Estrutura obrigatoria:
1) Saudacao amigavel
2) Resumo rapido
3) Passo a passo numerado
4) Observacoes importantes (OPEC/Financeiro)
5) Dica pratica
6) Pergunta final: "Conseguiu seguir?"

Regras absolutas: nunca use "Funit" (prefira "Praca"), abas fixas: Dados Gerais, Entregas, Faturamento, Observacoes/Anexos. Alteracao de praca: Proposta > Entregas > campo Praca. Encaminhe questoes tecnicas para marcos.irenos@gruporic.com.br. Usuarios nao devem excluir Cards (fale com Marcos Irenos). Use nomes reais de menus/botoes. Use documento de classificacao para novo/recorrente/reativado. Dicas praticas sempre que possivel. Se nao tiver certeza, encaminhe.

Fluxos dominados: pipeline (Oportunidade > Proposta > Apresentacao > Em Negociacao > Em Fechamento > Fechado), propostas (produtos, distribuicao diaria/semanal/mensal/proporcional/dias especificos/total, tipos de faturamento liquido/bruto/com reserva/sem faturamento), aprovacao (log, PDF, assinatura digital, geracao automatica de PI), correcoes (remover aprovacao, desconectar/excluir PIs, fluxos por etapa, processo C/S), assinatura digital (CPF, email e data de nascimento obrigatorios), disponibilidade/inventario em Vendas > Consulta Disponibilidade/Inventario.

Se a informacao nao estiver na base: "Nao encontrei essa informacao na base disponivel. Acione o time de inteligencia pelo e-mail inteligencia@gruporic.com.br (Marcos Staichaka)." Sugira "Participe do Grupo ADSIM Parana: https://chat.google.com/room/AAAAlBs_h2U?cls=7".`

// DefaultGuardPrompt is the system turn the completion proxy prepends to
// client-supplied conversations.
const DefaultGuardPrompt = "Siga apenas o escopo do suporte ADSIM. Nao exponha segredos ou dados internos."

// AssistantProfile controls how conversations are framed and forwarded to
// the completion service.
type AssistantProfile struct {
	SystemPrompt  string  `toml:"system_prompt"`
	GuardPrompt   string  `toml:"guard_prompt"`
	Model         string  `toml:"model"`
	Temperature   float64 `toml:"temperature"`
	HistoryWindow int     `toml:"history_window"`
	MaxForwarded  int     `toml:"max_forwarded"`
	// FallbackReply is stored when the completion returns no text.
	FallbackReply string `toml:"fallback_reply"`
}

// DefaultAssistantProfile returns the built-in profile.
func DefaultAssistantProfile() AssistantProfile {
	return AssistantProfile{
		SystemPrompt:  DefaultSystemPrompt,
		GuardPrompt:   DefaultGuardPrompt,
		Model:         "gpt-4o-mini",
		Temperature:   0.3,
		HistoryWindow: 10,
		MaxForwarded:  20,
		FallbackReply: "Sem resposta",
	}
}

// LoadAssistantProfile decodes a TOML profile on top of base. Keys absent
// from the file keep the value from base.
func LoadAssistantProfile(path string, base AssistantProfile) (AssistantProfile, error) {
	prof := base
	md, err := toml.DecodeFile(path, &prof)
	if err != nil {
		return base, fmt.Errorf("decode assistant profile %s: %w", path, err)
	}
	if undec := md.Undecoded(); len(undec) > 0 {
		keys := make([]string, 0, len(undec))
		for _, k := range undec {
			keys = append(keys, k.String())
		}
		return base, fmt.Errorf("assistant profile %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	prof.SystemPrompt = strings.TrimSpace(prof.SystemPrompt)
	prof.GuardPrompt = strings.TrimSpace(prof.GuardPrompt)
	return prof, nil
}

// Validate reports the first invalid field of the profile.
func (p AssistantProfile) Validate() error {
	switch {
	case strings.TrimSpace(p.SystemPrompt) == "":
		return errors.New("assistant system_prompt must not be empty")
	case strings.TrimSpace(p.Model) == "":
		return errors.New("OPENAI_MODEL must not be empty")
	case p.Temperature < 0 || p.Temperature > 2:
		return errors.New("OPENAI_TEMPERATURE must be in [0,2]")
	case p.HistoryWindow < 0:
		return errors.New("HISTORY_WINDOW must be >= 0")
	case p.MaxForwarded < 2:
		return errors.New("MAX_FORWARDED must be >= 2")
	}
	return nil
}
