package ingest

import (
	"strings"

	"golang.org/x/text/width"

	"github.com/Boomnana/test-agent/internal/model"
)

// field identifies a TestCase column.
type field int

const (
	fieldUnknown field = iota
	fieldCaseID
	fieldModule
	fieldTitle
	fieldPrecondition
	fieldSteps
	fieldExpected
	fieldActual
	fieldResult
	fieldRemark
	fieldTester
)

var headerAliases = map[field][]string{
	fieldCaseID:       {"caseid", "id", "testid", "用例编号", "用例id", "编号", "序号"},
	fieldModule:       {"module", "feature", "component", "模块", "功能模块", "所属模块"},
	fieldTitle:        {"title", "casename", "testcase", "name", "summary", "用例名称", "用例标题", "标题", "测试点"},
	fieldPrecondition: {"precondition", "preconditions", "前置条件", "预置条件"},
	fieldSteps:        {"steps", "teststeps", "操作步骤", "测试步骤", "步骤"},
	fieldExpected:     {"expected", "expectedresult", "预期结果", "期望结果"},
	fieldActual:       {"actual", "actualresult", "实际结果"},
	fieldResult:       {"result", "status", "testresult", "执行结果", "测试结果", "结果"},
	fieldRemark:       {"remark", "remarks", "notes", "comment", "comments", "备注", "说明"},
	fieldTester:       {"tester", "owner", "executor", "执行人", "测试人员", "测试人"},
}

var headerIndex = func() map[string]field {
	idx := make(map[string]field)
	for f, aliases := range headerAliases {
		for _, a := range aliases {
			idx[a] = f
		}
	}
	return idx
}()

var resultAliases = map[string]model.CaseResult{
	"pass": model.ResultPass, "passed": model.ResultPass, "ok": model.ResultPass,
	"success": model.ResultPass, "通过": model.ResultPass, "成功": model.ResultPass,
	"fail": model.ResultFail, "failed": model.ResultFail, "failure": model.ResultFail,
	"ng": model.ResultFail, "失败": model.ResultFail, "不通过": model.ResultFail, "未通过": model.ResultFail,
	"blocked": model.ResultBlocked, "block": model.ResultBlocked, "阻塞": model.ResultBlocked, "受阻": model.ResultBlocked,
	"skip": model.ResultSkipped, "skipped": model.ResultSkipped, "na": model.ResultSkipped, "n/a": model.ResultSkipped,
	"notrun": model.ResultSkipped, "未执行": model.ResultSkipped, "跳过": model.ResultSkipped,
}

// fold normalizes full-width characters, case and separators so that
// "Case ID", "case_id" and "ＣＡＳＥ　ＩＤ" compare equal.
func fold(s string) string {
	s = width.Fold.String(s)
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "", "_", "", "-", "", "\t", "", "\n", "").Replace(s)
}

func lookupHeader(cell string) field {
	return headerIndex[fold(cell)]
}

// NormalizeResult maps a raw result cell onto a CaseResult.
func NormalizeResult(raw string) model.CaseResult {
	if r, ok := resultAliases[fold(raw)]; ok {
		return r
	}
	return model.ResultUnknown
}
