package compare

import (
	"strings"

	"github.com/peter-zx/xuwei-data/internal/model"
)

// PersonKey 计算人员标识：两个标识字段去空格后以 "_" 连接。
// 任一字段为空时返回 false，该记录不参与分组。
func PersonKey(rec model.Record, identity model.Identity) (string, bool) {
	first, second := identity.KeyFields()
	a := strings.TrimSpace(rec.Get(first))
	b := strings.TrimSpace(rec.Get(second))
	if a == "" || b == "" {
		return "", false
	}
	return a + "_" + b, true
}
