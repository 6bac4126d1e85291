package synth

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func beatSheet(scenes int) string {
	var b strings.Builder
	b.WriteString("Blueprint follows.\n\n")
	for i := 1; i <= scenes; i++ {
		fmt.Fprintf(&b, "## SCENE %d: Turn %d\n**Characters:** Mara\n**The Turn:** Safe -> In danger\n\n", i, i)
	}
	return b.String()
}

const canonPacket = "Relationship Story\n- Trust score: 41\n\nDynamics\n- Limit: Timelock\n"

func TestSplitScenes(t *testing.T) {
	assert.Nil(t, splitScenes(beatSheet(4)))
	assert.Nil(t, splitScenes("just prose"))

	scenes := splitScenes(beatSheet(6))
	require.Len(t, scenes, ScenesPerEpisode)
	assert.True(t, strings.HasPrefix(scenes[0], "## SCENE 1: Turn 1"))
	assert.True(t, strings.HasPrefix(scenes[4], "## SCENE 5: Turn 5"))
	assert.NotContains(t, scenes[4], "SCENE 6")
}

func TestBeatSheet(t *testing.T) {
	gen := &scripted{replies: []string{"  " + beatSheet(5) + "  "}}
	s := New(gen, zerolog.Nop())

	got, err := s.BeatSheet(context.Background(), BeatInput{
		WinningText:  "Dig a trench",
		Canon:        canonPacket,
		Contributors: []string{"ada", "wren"},
	})
	require.NoError(t, err)
	assert.Equal(t, strings.TrimSpace(beatSheet(5)), got)
	assert.Contains(t, gen.prompts[0], "Winning submission: Dig a trench")
	assert.Contains(t, gen.prompts[0], "Contributors: ada, wren")
}

func TestScriptSceneByScene(t *testing.T) {
	gen := &scripted{replies: []string{"Mara runs. The ground splits."}}
	s := New(gen, zerolog.Nop())
	s.sceneWords = 8

	script, err := s.Script(context.Background(), beatSheet(5), canonPacket)
	require.NoError(t, err)

	// Each scene starts at 5 words and needs one continuation to pass 8.
	assert.Equal(t, ScenesPerEpisode*2, gen.calls)
	assert.Len(t, strings.Split(script, "\n\n"), ScenesPerEpisode*2)
	assert.Contains(t, gen.prompts[0], "SCENE 1 of 5")
	assert.Contains(t, gen.prompts[0], "Trust score: 41, Limit: Timelock")
	assert.Contains(t, gen.prompts[0], "(start of episode)")
	assert.Contains(t, gen.prompts[2], "SCENE 2 of 5")
	assert.Contains(t, gen.prompts[2], "...Mara runs.")
}

func TestScriptSinglePassStopsAfterContinuations(t *testing.T) {
	gen := &scripted{replies: []string{"Too short."}}
	s := New(gen, zerolog.Nop())

	script, err := s.Script(context.Background(), "no blueprint here", "")
	require.NoError(t, err)
	assert.Equal(t, 1+maxContinuations, gen.calls)
	assert.Equal(t, 2*(1+maxContinuations), wordCount(script))
	assert.Contains(t, gen.prompts[0], "Context:\n(none)")
}

func TestPolishForAudio(t *testing.T) {
	gen := &scripted{replies: []string{"\nThe hum of the lamp dies down...\n"}}
	got, err := New(gen, zerolog.Nop()).PolishForAudio(context.Background(), "The light faded.", "")
	require.NoError(t, err)
	assert.Equal(t, "The hum of the lamp dies down...", got)
	assert.Contains(t, gen.prompts[0], "Input text:\nThe light faded.")
}

func TestLastWords(t *testing.T) {
	assert.Equal(t, "c d", lastWords("a  b\nc d", 2))
	assert.Equal(t, "a b", lastWords("a b", 5))
}
