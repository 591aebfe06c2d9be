package plugin

import (
	"context"
	"testing"

	"github.com/specialistvlad/nodegrid/internal/node"
	"github.com/specialistvlad/nodegrid/internal/script"
	"github.com/specialistvlad/nodegrid/internal/testutil"
	"github.com/specialistvlad/nodegrid/internal/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const textPluginID = "0d7f6a51-3c8e-4f0b-9e2a-6b1d2c3e4f50"

func ptr(v value.Value) *value.Value { return &v }

func textDefinition() *Definition {
	return &Definition{
		ID:   textPluginID,
		Name: "Text Stats",
		Inputs: []InputPin{
			{Name: "text", Kind: DataString, Required: true},
			{Name: "suffix", Kind: DataString, Default: ptr(value.Text("!"))},
		},
		Outputs: []OutputPin{
			{Name: "length", Kind: DataNumber},
			{Name: "shout", Kind: DataString},
		},
		Script: `
outputs = {
  length = strlen(inputs.text)
  shout  = "${upper(inputs.text)}${inputs.suffix}"
}
`,
		ConfigDefaults: value.Map{"factor": value.Number(2)},
	}
}

func TestBehavior_RequiredInputMissing(t *testing.T) {
	ctx := testutil.Context(t)
	calls := 0
	engine := script.Func(func(context.Context, string, value.Map) value.Map {
		calls++
		return value.Map{}
	})
	n := node.New(NewBehavior(textDefinition(), engine))

	out := n.Execute(ctx, value.Map{})

	assert.Equal(t, value.Map{"error": value.Text("Required input 'text' is missing")}, out)
	assert.Zero(t, calls, "no script runs when validation fails")
}

func TestBehavior_NullRequiredInputIsMissing(t *testing.T) {
	ctx := testutil.Context(t)
	n := node.New(NewBehavior(textDefinition(), script.NewHCLEngine()))

	out := n.Execute(ctx, value.Map{"text": value.Null()})

	assert.Equal(t, value.Map{"error": value.Text("Required input 'text' is missing")}, out)
}

func TestBehavior_MainScriptWithDefaults(t *testing.T) {
	ctx := testutil.Context(t)
	n := node.New(NewBehavior(textDefinition(), script.NewHCLEngine()))
	inputs := value.Map{"text": value.Text("hey")}

	out := n.Execute(ctx, inputs)

	assert.Equal(t, value.Map{
		"length": value.Number(3),
		"shout":  value.Text("HEY!"),
	}, out)
	assert.Equal(t, value.Map{"text": value.Text("hey")}, inputs, "caller's inputs are not mutated")
}

func TestBehavior_ScopeContents(t *testing.T) {
	ctx := testutil.Context(t)
	var seen value.Map
	engine := script.Func(func(_ context.Context, _ string, scope value.Map) value.Map {
		seen = scope
		return value.Map{}
	})
	def := textDefinition()
	b := NewBehavior(def, engine)
	require.NoError(t, b.Configure(value.Map{"extra": value.Bool(true)}))

	node.New(b).Execute(ctx, value.Map{"text": value.Text("x")})

	inputs, ok := seen["inputs"].AsMap()
	require.True(t, ok)
	assert.Equal(t, value.Text("!"), inputs["suffix"], "defaults are applied before the script runs")

	config, ok := seen["config"].AsMap()
	require.True(t, ok)
	assert.Equal(t, value.Number(2), config["factor"], "definition defaults remain")
	assert.Equal(t, value.Bool(true), config["extra"])
	assert.NotContains(t, seen, "outputs", "the main script does not see outputs")
}

func TestBehavior_ExplicitNullOptionalInput(t *testing.T) {
	// --- Arrange ---
	ctx := testutil.Context(t)
	def := textDefinition()
	def.Script = `outputs = { shout = inputs.suffix == null ? "none" : inputs.suffix }`
	n := node.New(NewBehavior(def, script.NewHCLEngine()))

	// --- Act ---
	out := n.Execute(ctx, value.Map{"text": value.Text("x"), "suffix": value.Null()})

	// --- Assert ---
	assert.Equal(t, value.Map{"shout": value.Text("none")}, out, "an explicit null is not replaced by the default")
}

func TestBehavior_ErrorBindingNextToOutputs(t *testing.T) {
	ctx := testutil.Context(t)
	def := textDefinition()
	def.Script = "length = 1\nerror = \"soft\""

	out := node.New(NewBehavior(def, script.NewHCLEngine())).Execute(ctx, value.Map{"text": value.Text("x")})

	assert.Equal(t, value.Map{"length": value.Number(1), "error": value.Text("soft")}, out)
}

func TestBehavior_FlatResultFallback(t *testing.T) {
	ctx := testutil.Context(t)
	engine := script.Func(func(context.Context, string, value.Map) value.Map {
		return value.Map{"length": value.Number(1), "helper": value.Text("kept")}
	})

	out := node.New(NewBehavior(textDefinition(), engine)).Execute(ctx, value.Map{"text": value.Text("x")})

	assert.Equal(t, value.Map{"length": value.Number(1), "helper": value.Text("kept")}, out)
}

func TestBehavior_OutputOverridePrecedence(t *testing.T) {
	testCases := []struct {
		name     string
		override string
		want     value.Value
	}{
		{"result key wins", "result = 7\nlength = 99", value.Number(7)},
		{"pin name key", "length = outputs.length * 10", value.Number(30)},
		{"neither leaves value unchanged", "unrelated = 1", value.Number(3)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := testutil.Context(t)
			def := textDefinition()
			def.Outputs[0].Script = tc.override

			out := node.New(NewBehavior(def, script.NewHCLEngine())).Execute(ctx, value.Map{"text": value.Text("abc")})

			assert.Equal(t, tc.want, out["length"])
			assert.Equal(t, value.Text("ABC!"), out["shout"])
		})
	}
}

func TestBehavior_OverridesSeeEarlierOverrides(t *testing.T) {
	ctx := testutil.Context(t)
	def := textDefinition()
	def.Outputs[0].Script = "result = 100"
	def.Outputs[1].Script = "result = format(\"%d\", outputs.length)"

	out := node.New(NewBehavior(def, script.NewHCLEngine())).Execute(ctx, value.Map{"text": value.Text("abc")})

	assert.Equal(t, value.Text("100"), out["shout"])
}

func TestBehavior_ScriptFailure(t *testing.T) {
	t.Run("main script", func(t *testing.T) {
		ctx, logs := testutil.NewContext(t)
		def := textDefinition()
		def.Script = "outputs = missing_var"

		out := node.New(NewBehavior(def, script.NewHCLEngine())).Execute(ctx, value.Map{"text": value.Text("abc")})

		require.Len(t, out, 1)
		msg, ok := out["error"].AsText()
		require.True(t, ok)
		assert.Contains(t, msg, "Unknown variable")
		assert.Contains(t, logs.String(), "Node execution failed.")
	})

	t.Run("override script aborts the run", func(t *testing.T) {
		ctx := testutil.Context(t)
		def := textDefinition()
		def.Outputs[1].Script = "result = ("

		out := node.New(NewBehavior(def, script.NewHCLEngine())).Execute(ctx, value.Map{"text": value.Text("abc")})

		require.Len(t, out, 1)
		msg, _ := out["error"].AsText()
		assert.Contains(t, msg, "output 'shout'")
	})
}

func TestBehavior_SnapshotIsolation(t *testing.T) {
	def := textDefinition()
	b := NewBehavior(def, script.NewHCLEngine())

	def.Outputs = append(def.Outputs, OutputPin{Name: "later", Kind: DataAny})
	def.ConfigDefaults["factor"] = value.Number(100)

	assert.Equal(t, []string{"length", "shout"}, b.OutputPinNames())
	assert.Equal(t, value.Number(2), b.Config()["factor"])
}
