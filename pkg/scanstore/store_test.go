package scanstore

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/open-teleop/airscan/pkg/pointcloud"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleCloud() *pointcloud.Cloud {
	return &pointcloud.Cloud{Points: []r3.Vector{
		{X: 1.5, Y: -0.25, Z: 3},
		{X: -12.75, Y: 4, Z: 0.5},
	}}
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "scan_00020_1700000000123.xyz", FileName(20, 1700000000123, FormatXYZ))
	assert.Equal(t, "scan_00007.npy", FileName(7, 0, FormatNPY))
}

func TestXYZMatchesSavetxtLayout(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeXYZ(&buf, sampleCloud()))
	assert.Equal(t,
		"1.500000000000000000e+00 -2.500000000000000000e-01 3.000000000000000000e+00\n"+
			"-1.275000000000000000e+01 4.000000000000000000e+00 5.000000000000000000e-01\n",
		buf.String())

	c, err := readXYZ(&buf)
	require.NoError(t, err)
	assert.Equal(t, sampleCloud().Points, c.Points)
}

func TestReadXYZTolerance(t *testing.T) {
	c, err := readXYZ(bytes.NewBufferString("# header\n\n1 2 3 9\n  4\t5 6\n"))
	require.NoError(t, err)
	assert.Equal(t, []r3.Vector{{X: 1, Y: 2, Z: 3}, {X: 4, Y: 5, Z: 6}}, c.Points)

	_, err = readXYZ(bytes.NewBufferString("1 2\n"))
	assert.Error(t, err)
	_, err = readXYZ(bytes.NewBufferString("1 2 nope\n"))
	assert.Error(t, err)
}

func TestNPYHeaderLayout(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeNPY(&buf, sampleCloud()))
	data := buf.Bytes()

	require.Len(t, data, 128+2*24)
	assert.Equal(t, []byte("\x93NUMPY\x01\x00"), data[:8])
	assert.Equal(t, uint16(118), binary.LittleEndian.Uint16(data[8:10]))
	assert.Equal(t, byte('\n'), data[127])
	assert.Contains(t, string(data[10:128]), "'shape': (2, 3)")
	assert.Equal(t, -12.75, math.Float64frombits(binary.LittleEndian.Uint64(data[128+24:])))

	c, err := readNPY(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, sampleCloud().Points, c.Points)
}

func TestReadNPYFloat32(t *testing.T) {
	header := "{'descr': '<f4', 'fortran_order': False, 'shape': (1, 3), }"
	for (10+len(header)+1)%64 != 0 {
		header += " "
	}
	header += "\n"
	var buf bytes.Buffer
	buf.WriteString("\x93NUMPY\x01\x00")
	binary.Write(&buf, binary.LittleEndian, uint16(len(header)))
	buf.WriteString(header)
	binary.Write(&buf, binary.LittleEndian, []float32{1, 2.5, -3})

	c, err := readNPY(&buf)
	require.NoError(t, err)
	assert.Equal(t, []r3.Vector{{X: 1, Y: 2.5, Z: -3}}, c.Points)
}

func TestReadNPYRejects(t *testing.T) {
	_, err := readNPY(bytes.NewBufferString("not numpy at all"))
	assert.Error(t, err)

	header := "{'descr': '<f8', 'fortran_order': False, 'shape': (1, 2), }\n"
	var buf bytes.Buffer
	buf.WriteString("\x93NUMPY\x01\x00")
	binary.Write(&buf, binary.LittleEndian, uint16(len(header)))
	buf.WriteString(header)
	_, err = readNPY(&buf)
	assert.ErrorContains(t, err, "3 columns")
}

func TestStoreSaveAndLoadEachFormat(t *testing.T) {
	for _, format := range Formats {
		t.Run(format, func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "lidar")
			s, err := New(dir, format, nil)
			require.NoError(t, err)

			path, err := s.Save(3, 1700000000000, sampleCloud())
			require.NoError(t, err)
			assert.Equal(t, filepath.Join(dir, "scan_00003_1700000000000."+format), path)

			c, err := Load(path)
			require.NoError(t, err)
			require.Equal(t, 2, c.Len())
			for i, want := range sampleCloud().Points {
				assert.InDelta(t, want.X, c.Points[i].X, 0.01)
				assert.InDelta(t, want.Y, c.Points[i].Y, 0.01)
				assert.InDelta(t, want.Z, c.Points[i].Z, 0.01)
			}

			files, err := List(dir)
			require.NoError(t, err)
			assert.Equal(t, []string{path}, files)
		})
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	_, err := New(t.TempDir(), "pcd", nil)
	assert.ErrorIs(t, err, ErrUnknownFormat)

	_, err = Load("scan.pcd")
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestLoadAllSkipsBrokenScans(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, FormatXYZ, nil)
	require.NoError(t, err)
	_, err = s.Save(0, 0, sampleCloud())
	require.NoError(t, err)
	_, err = s.Save(20, 0, &pointcloud.Cloud{Points: []r3.Vector{{X: 9, Y: 9, Z: 9}}})
	require.NoError(t, err)

	broken := filepath.Join(dir, "scan_00010.xyz")
	require.NoError(t, os.WriteFile(broken, []byte("garbage\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".tmp-scan_00030.xyz"), []byte("1 2 3\n"), 0644))

	m, err := LoadAll(dir)
	require.NoError(t, err)
	assert.Equal(t, 3, m.Cloud.Len())
	assert.Equal(t, []string{
		filepath.Join(dir, "scan_00000.xyz"),
		filepath.Join(dir, "scan_00020.xyz"),
	}, m.Files)
	require.Len(t, m.Skipped, 1)
	assert.Equal(t, broken, m.Skipped[0].Path)
	assert.Equal(t, r3.Vector{X: 9, Y: 9, Z: 9}, m.Cloud.Points[2])
}

func npyWithShape(shape string, payload []byte) []byte {
	header := "{'descr': '<f8', 'fortran_order': False, 'shape': " + shape + ", }\n"
	var buf bytes.Buffer
	buf.WriteString("\x93NUMPY\x01\x00")
	binary.Write(&buf, binary.LittleEndian, uint16(len(header)))
	buf.WriteString(header)
	buf.Write(payload)
	return buf.Bytes()
}

func TestLoadAllSkipsCorruptHeaders(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, FormatXYZ, nil)
	require.NoError(t, err)
	_, err = s.Save(0, 0, sampleCloud())
	require.NoError(t, err)

	oneRow := make([]byte, 24)
	overflow := filepath.Join(dir, "scan_00001.npy")
	require.NoError(t, os.WriteFile(overflow, npyWithShape("(99999999999999999999, 3)", oneRow), 0644))
	huge := filepath.Join(dir, "scan_00002.npy")
	require.NoError(t, os.WriteFile(huge, npyWithShape("(1099511627776, 3)", oneRow), 0644))

	lasStore, err := New(t.TempDir(), FormatLAS, nil)
	require.NoError(t, err)
	lasPath, err := lasStore.Save(3, 0, sampleCloud())
	require.NoError(t, err)
	data, err := os.ReadFile(lasPath)
	require.NoError(t, err)
	binary.LittleEndian.PutUint32(data[lasNumberPointsPos:], math.MaxUint32)
	badLAS := filepath.Join(dir, "scan_00003.las")
	require.NoError(t, os.WriteFile(badLAS, data, 0644))

	m, err := LoadAll(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "scan_00000.xyz")}, m.Files)
	assert.Equal(t, 2, m.Cloud.Len())

	skipped := make([]string, 0, len(m.Skipped))
	for _, sf := range m.Skipped {
		assert.Error(t, sf.Err, sf.Path)
		skipped = append(skipped, sf.Path)
	}
	assert.ElementsMatch(t, []string{overflow, huge, badLAS}, skipped)
}

func TestListMissingDirectory(t *testing.T) {
	files, err := List(filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)
	assert.Empty(t, files)
}
