package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected Record
		hasError bool
	}{
		{
			name:     "Blank separated",
			input:    "1 2 3 40\r\n",
			expected: Record{Source: 1, Dest: 2, Label: 3, Time: 40},
		},
		{
			name:     "Tabs and extra spaces",
			input:    "\t7\t 8  9\t10",
			expected: Record{Source: 7, Dest: 8, Label: 9, Time: 10},
		},
		{
			name:     "Comma separated",
			input:    "5,6,1,1700000000",
			expected: Record{Source: 5, Dest: 6, Label: 1, Time: 1700000000},
		},
		{
			name:     "Negative timestamp",
			input:    "1 2 3 -4",
			expected: Record{Source: 1, Dest: 2, Label: 3, Time: -4},
		},
		{
			name:     "Too few fields",
			input:    "1 2 3",
			hasError: true,
		},
		{
			name:     "Too many fields",
			input:    "1 2 3 4 5",
			hasError: true,
		},
		{
			name:     "Not a number",
			input:    "1 two 3 4",
			hasError: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec, err := Parse(tc.input)
			if tc.hasError {
				require.Error(t, err)
				assert.NotErrorIs(t, err, ErrNoRecord)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, rec)
		})
	}
}

func TestParse_NoRecord(t *testing.T) {
	for _, line := range []string{"", "   \n", "# header", "% comment"} {
		_, err := Parse(line)
		assert.ErrorIs(t, err, ErrNoRecord, "%q", line)
	}
}
