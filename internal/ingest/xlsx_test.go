package ingest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/Boomnana/test-agent/internal/model"
)

func createTestXLSX(t *testing.T, sheets map[string][][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	for name, rows := range sheets {
		sheet, err := f.AddSheet(name)
		require.NoError(t, err)
		for _, row := range rows {
			r := sheet.AddRow()
			for _, val := range row {
				r.AddCell().SetString(val)
			}
		}
	}
	path := filepath.Join(t.TempDir(), "report.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestReadXLSX_EnglishHeaders(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Cases": {
			{"Case ID", "Module", "Title", "Steps", "Expected Result", "Actual Result", "Result", "Remark"},
			{"TC-1", "Login", "Valid login", "enter creds", "home page", "home page", "Pass", ""},
			{"TC-2", "", "Checkout total", "add items", "total 10", "total 0", "FAILED", "rounding?"},
			{"", "", "", "", "", "", "", ""},
			{"TC-3", "Search", "Empty query", "search ''", "hint", "", "blocked", ""},
		},
	})

	cases, err := ReadXLSX(context.Background(), path, XLSXOptions{})
	require.NoError(t, err)
	require.Len(t, cases, 3)

	assert.Equal(t, "TC-1", cases[0].CaseID)
	assert.Equal(t, 2, cases[0].Row)
	assert.Equal(t, "Login", cases[0].Module)
	assert.Equal(t, "sheet", cases[0].ModuleSource)
	assert.Equal(t, model.ResultPass, cases[0].Result)

	assert.Equal(t, "", cases[1].Module)
	assert.Equal(t, "", cases[1].ModuleSource)
	assert.Equal(t, "FAILED", cases[1].RawResult)
	assert.Equal(t, model.ResultFail, cases[1].Result)
	assert.Equal(t, "total 0", cases[1].Actual)
	assert.Equal(t, "rounding?", cases[1].Remark)

	assert.Equal(t, 5, cases[2].Row)
	assert.Equal(t, model.ResultBlocked, cases[2].Result)
}

func TestReadXLSX_ChineseHeadersBelowTitle(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"测试报告": {
			{"V2.3 回归测试"},
			{"执行周期: 第 3 轮"},
			{"用例编号", "所属模块", "用例标题", "测试步骤", "预期结果", "实际结果", "测试结果", "执行人"},
			{"A-01", "支付", "余额支付", "点击支付", "支付成功", "报错 500", "不通过", "张三"},
			{"A-02", "支付", "微信支付", "扫码", "支付成功", "支付成功", "通过", "李四"},
		},
	})

	cases, err := ReadXLSX(context.Background(), path, XLSXOptions{})
	require.NoError(t, err)
	require.Len(t, cases, 2)
	assert.Equal(t, "A-01", cases[0].CaseID)
	assert.Equal(t, model.ResultFail, cases[0].Result)
	assert.Equal(t, "张三", cases[0].Tester)
	assert.Equal(t, 4, cases[0].Row)
	assert.Equal(t, model.ResultPass, cases[1].Result)
}

func TestReadXLSX_SheetName(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Round1": {{"Title", "Result"}, {"a", "pass"}},
		"Round2": {{"Title", "Result"}, {"b", "fail"}, {"c", "fail"}},
	})

	cases, err := ReadXLSX(context.Background(), path, XLSXOptions{SheetName: "Round2"})
	require.NoError(t, err)
	require.Len(t, cases, 2)
	assert.Equal(t, "b", cases[0].Title)

	_, err = ReadXLSX(context.Background(), path, XLSXOptions{SheetName: "Missing"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `sheet "Missing" not found`)
}

func TestReadXLSX_NoHeader(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Data": {{"foo", "bar"}, {"1", "2"}},
	})
	_, err := ReadXLSX(context.Background(), path, XLSXOptions{})
	assert.ErrorIs(t, err, ErrNoHeader)
}

func TestReadXLSX_MissingFile(t *testing.T) {
	_, err := ReadXLSX(context.Background(), filepath.Join(t.TempDir(), "nope.xlsx"), XLSXOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open xlsx")
}

func TestReadXLSX_Cancelled(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Cases": {{"Title", "Result"}, {"a", "pass"}},
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ReadXLSX(ctx, path, XLSXOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFileSource(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Cases": {{"Title", "Result"}, {"a", "pass"}},
	})
	src := FileSource{Path: path}
	assert.Equal(t, "report.xlsx", src.Name())

	cases, err := src.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, cases, 1)
}
