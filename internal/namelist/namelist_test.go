package namelist

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestRender_SubstitutesAllOccurrences(t *testing.T) {
	tpl := `&share
 start_date = '__START_DATE__', '__START_DATE__',
 end_date   = '__END_DATE__', '__END_DATE__',
 max_dom    = __MAX_DOM__,
/`
	b := Bindings{
		"START_DATE": "2020-03-15_00:00:00",
		"END_DATE":   "2020-03-16_00:00:00",
		"MAX_DOM":    "2",
	}

	out, unused, err := Render(tpl, b)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if len(unused) != 0 {
		t.Errorf("unused = %v, want none", unused)
	}

	want := `&share
 start_date = '2020-03-15_00:00:00', '2020-03-15_00:00:00',
 end_date   = '2020-03-16_00:00:00', '2020-03-16_00:00:00',
 max_dom    = 2,
/`
	if out != want {
		t.Errorf("Render() = %q, want %q", out, want)
	}
	if len(Placeholders(out)) != 0 {
		t.Errorf("rendered output still contains placeholders: %v", Placeholders(out))
	}
}

func TestRender_Idempotent(t *testing.T) {
	tpl := "dx = __DX__,\ne_we = __E_WE__,"
	b := Bindings{"DX": "100000", "E_WE": "50"}

	first, _, err := Render(tpl, b)
	if err != nil {
		t.Fatal(err)
	}
	second, _, err := Render(tpl, b)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Errorf("repeated renders differ: %q vs %q", first, second)
	}
}

func TestRender_UnboundPlaceholder(t *testing.T) {
	tpl := "start = __START__, end = __END__,"
	_, _, err := Render(tpl, Bindings{"START": "x"})

	var unbound *UnboundError
	if !errors.As(err, &unbound) {
		t.Fatalf("Render() error = %v, want *UnboundError", err)
	}
	if !reflect.DeepEqual(unbound.Names, []string{"END"}) {
		t.Errorf("unbound names = %v, want [END]", unbound.Names)
	}
}

func TestRender_UnknownBindingIsWarning(t *testing.T) {
	tpl := "dx = __DX__,"
	out, unused, err := Render(tpl, Bindings{"DX": "100000", "NEVER_USED": "1"})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if out != "dx = 100000," {
		t.Errorf("Render() = %q", out)
	}
	if !reflect.DeepEqual(unused, []string{"NEVER_USED"}) {
		t.Errorf("unused = %v, want [NEVER_USED]", unused)
	}
}

func TestRender_LeavesNonPlaceholderTextUntouched(t *testing.T) {
	// Lowercase and partial delimiters are not placeholders
	tpl := "__lower__ x__Y__ __A_B__ _SINGLE_ trailing"
	out, _, err := Render(tpl, Bindings{"A_B": "bound"})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if out != "__lower__ x__Y__ bound _SINGLE_ trailing" {
		t.Errorf("Render() = %q", out)
	}
}

func TestRender_SameTemplateDifferentBindings(t *testing.T) {
	// The two-pass stage renders the same template twice with a different
	// feature flag value
	tpl := "bio_emiss_opt = __BIO_EMISS_OPT__,"

	off, _, err := Render(tpl, Bindings{"BIO_EMISS_OPT": "0"})
	if err != nil {
		t.Fatal(err)
	}
	on, _, err := Render(tpl, Bindings{"BIO_EMISS_OPT": "3"})
	if err != nil {
		t.Fatal(err)
	}

	if off != "bio_emiss_opt = 0," || on != "bio_emiss_opt = 3," {
		t.Errorf("renders = %q / %q", off, on)
	}
}

func TestRenderFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "namelist.wps.tpl")
	dst := filepath.Join(dir, "namelist.wps")

	content := "interval_seconds = __INTERVAL__,"
	if err := os.WriteFile(src, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := RenderFile(src, dst, Bindings{"INTERVAL": "21600"}); err != nil {
		t.Fatalf("RenderFile() error = %v", err)
	}

	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "interval_seconds = 21600," {
		t.Errorf("rendered file = %q", got)
	}

	// Source must be untouched
	srcAfter, _ := os.ReadFile(src)
	if string(srcAfter) != content {
		t.Errorf("template was mutated: %q", srcAfter)
	}
}

func TestBindings_Set(t *testing.T) {
	b := Bindings{}
	b.Set("A", "text")
	b.Set("B", 42)
	b.Set("C", 2.5)

	if b["A"] != "text" || b["B"] != "42" || b["C"] != "2.5" {
		t.Errorf("bindings = %v", b)
	}
}

func TestPerDomain(t *testing.T) {
	got := PerDomain([]string{"100000", "20000"})
	if got != "100000, 20000," {
		t.Errorf("PerDomain() = %q", got)
	}
}
