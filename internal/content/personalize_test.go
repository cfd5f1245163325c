package content

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPersonalize(t *testing.T) {
	out := Personalize(`<p>Hi {{name}} ({{email}})</p>`, "Ann <Admin>", "ann@example.com")
	require.Equal(t, `<p>Hi Ann &lt;Admin&gt; (ann@example.com)</p>`, out)

	require.Equal(t, `<p>Hi b@example.com</p>`, Personalize(`<p>Hi {{name}}</p>`, "", "b@example.com"))
	require.Equal(t, `<p>plain</p>`, Personalize(`<p>plain</p>`, "x", "y"))
}

func TestPersonalizeText(t *testing.T) {
	require.Equal(t, "Hello Ann & co", PersonalizeText("Hello {{name}}", "Ann & co", "a@b.c"))
}
