package print

import (
	"context"
	"testing"

	"github.com/specialistvlad/taskgrid/internal/buildfile"
	"github.com/specialistvlad/taskgrid/internal/registry"
	"github.com/specialistvlad/taskgrid/internal/taskpath"
	"github.com/specialistvlad/taskgrid/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func TestPrint(t *testing.T) {
	testCases := []struct {
		name string
		args map[string]cty.Value
		want string
	}{
		{
			name: "defaults to the task path",
			want: "[core:hello] core:hello\n",
		},
		{
			name: "message and sorted values",
			args: map[string]cty.Value{
				"message": cty.StringVal("hi there"),
				"values": cty.ObjectVal(map[string]cty.Value{
					"b": cty.NumberIntVal(2),
					"a": cty.StringVal("one"),
				}),
			},
			want: "[core:hello] hi there\n      a = \"one\"\n      b = \"2\"\n",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			out := &testutil.SafeBuffer{}
			m := &Module{Out: out}
			r := registry.New(m)
			action, ok := r.Lookup("print")
			require.True(t, ok)

			task := &buildfile.Task{Path: taskpath.MustNew("core", "hello"), Action: "print", Args: tc.args}
			input := action.NewInput()
			require.NoError(t, registry.DecodeArgs(task.Args, input))
			require.NoError(t, action.Run(context.Background(), task, input))

			assert.Equal(t, tc.want, out.String())
		})
	}
}
