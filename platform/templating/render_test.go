package templating

import "testing"

func TestRender(t *testing.T) {
	vars := map[string]string{"name": "Ana Souza", "first_name": "Ana", "stage": "ganho"}

	cases := []struct {
		name string
		tpl  string
		want string
	}{
		{name: "frontend syntax", tpl: "Oi {{ first_name }}!", want: "Oi Ana!"},
		{name: "dot syntax", tpl: "Oi {{.name}}", want: "Oi Ana Souza"},
		{name: "case insensitive", tpl: "{{ Stage }}", want: "ganho"},
		{name: "unknown renders empty", tpl: "[{{ coupon }}]", want: "[]"},
		{name: "plain text", tpl: "sem variaveis", want: "sem variaveis"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Render(tc.tpl, vars)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestRenderRejectsBrokenTemplate(t *testing.T) {
	if _, err := Render("{{ range .items }}", nil); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestFirstName(t *testing.T) {
	if got := FirstName("  Ana   Souza "); got != "Ana" {
		t.Fatalf("expected Ana, got %q", got)
	}
	if got := FirstName(""); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}
