package model

// 标准字段：各 Sheet 的源列统一映射到这组字段上
const (
	FieldName             = "姓名"
	FieldPhone            = "电话"
	FieldIDCard           = "身份证"
	FieldDisability       = "残疾证"
	FieldIDCardExpiry     = "身份证到期时间"
	FieldDisabilityExpiry = "残疾证到期时间"
	FieldDisabilityLevel  = "残疾证等级"
	FieldDisabilityType   = "残疾证类型"
	FieldDisabilityNo     = "残疾证号" // 与“残疾证”是两个独立字段
)

var standardFields = []string{
	FieldName,
	FieldPhone,
	FieldIDCard,
	FieldDisability,
	FieldIDCardExpiry,
	FieldDisabilityExpiry,
	FieldDisabilityLevel,
	FieldDisabilityType,
	FieldDisabilityNo,
}

// StandardFields 返回标准字段列表（固定顺序，返回副本）
func StandardFields() []string {
	out := make([]string, len(standardFields))
	copy(out, standardFields)
	return out
}

// IsStandardField 判断是否为标准字段
func IsStandardField(field string) bool {
	for _, f := range standardFields {
		if f == field {
			return true
		}
	}
	return false
}

// Identity 人员标识口径
type Identity string

const (
	// IdentityCertificateNo 姓名 + 残疾证号（默认口径）
	IdentityCertificateNo Identity = "certificate_no"
	// IdentityLegacy 姓名 + 残疾证（早期版本口径，需显式开启）
	IdentityLegacy Identity = "legacy"
)

// KeyFields 返回该口径下组成人员标识的两个字段
func (i Identity) KeyFields() (string, string) {
	if i == IdentityLegacy {
		return FieldName, FieldDisability
	}
	return FieldName, FieldDisabilityNo
}

// ParseIdentity 解析配置中的口径名称，空值使用默认口径
func ParseIdentity(s string) (Identity, bool) {
	switch Identity(s) {
	case "", IdentityCertificateNo:
		return IdentityCertificateNo, true
	case IdentityLegacy:
		return IdentityLegacy, true
	default:
		return "", false
	}
}
