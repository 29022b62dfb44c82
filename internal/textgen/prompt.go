package textgen

import (
	"fmt"
	"math/rand"
	"strings"
)

// Placeholders accepted in prompt templates. Each is replaced once, at its
// first occurrence.
var placeholders = struct {
	name []string
	doc  []string
}{
	name: []string{"{{nomeGrupo}}", "{{groupName}}"},
	doc:  []string{"{{conteudoPDF}}", "{{document}}"},
}

// Render fills the first occurrence of the group name and document
// placeholders in tpl.
func Render(tpl, name, doc string) string {
	for _, p := range placeholders.name {
		tpl = strings.Replace(tpl, p, name, 1)
	}
	for _, p := range placeholders.doc {
		tpl = strings.Replace(tpl, p, doc, 1)
	}
	return tpl
}

var cannedReminders = []string{
	"Pessoal, passando para lembrar de dar uma olhada no material do curso \"%s\". Bons estudos!",
	"E aí, turma! Tudo certo com os estudos em \"%s\"? Qualquer dúvida, mandem aqui!",
	"Uma ótima semana de estudos para todos do curso \"%s\"! Vamos com tudo! ✨",
	"Só para dar um alô e desejar foco total nos estudos do curso \"%s\"!",
	"Lembrete amigável: que tal separar um tempinho hoje para o nosso curso \"%s\"? 😉",
	"Olá! Hoje é um bom momento para revisar os conteúdos do curso \"%s\". Em breve enviaremos novidades!",
}

// Fallback picks a canned reminder for name.
func Fallback(name string, rng *rand.Rand) string {
	i := 0
	if rng != nil {
		i = rng.Intn(len(cannedReminders))
	}
	return fmt.Sprintf(cannedReminders[i], name)
}
