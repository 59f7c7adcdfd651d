package report

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestWorkbook(t *testing.T) {
	content, err := Workbook(BuildTables(sampleReport()))
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(content))
	require.NoError(t, err)
	defer f.Close()

	teams, err := f.GetRows("By Team")
	require.NoError(t, err)
	require.Len(t, teams, 3)
	assert.Equal(t, ColTeam, teams[0][0])
	assert.Equal(t, "Support Team", teams[1][0])
	assert.Equal(t, "1", teams[1][1])
	assert.Equal(t, "Tico | Voiceflow Assistant", teams[2][0])
	assert.Equal(t, NotRated, teams[2][5], "unrated team counts")

	agents, err := f.GetRows("By Agent")
	require.NoError(t, err)
	require.Len(t, agents, 2)
	assert.Equal(t, ColAgentName, agents[0][0])
	assert.Equal(t, "Alice", agents[1][0])
	assert.Contains(t, agents[1], "100.00%")

	style, err := f.GetCellStyle("By Agent", "A1")
	require.NoError(t, err)
	assert.NotZero(t, style, "header row is styled")
}
