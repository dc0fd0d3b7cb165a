package scorer

import (
	"strings"

	"talent-match-go/internal/types"
)

// RoleClassifier 判断一段任职是否属于技术岗位。
// confident 为 false 表示该分类器无法给出判断，应交给链上的下一个分类器。
type RoleClassifier interface {
	Classify(role types.RoleEntry) (technical bool, confident bool)
}

// ClassifierChain 按顺序尝试各分类器，返回第一个有把握的判定。
// 全部无法判定时返回 confident=false，调用方应将所有任职一视同仁。
type ClassifierChain struct {
	classifiers []RoleClassifier
}

// NewDefaultClassifierChain 构造默认的三级分类链：
// 技术栈标签 → 职位名关键词 → 上游聚类标签。
func NewDefaultClassifierChain() *ClassifierChain {
	return &ClassifierChain{classifiers: []RoleClassifier{
		TechStackClassifier{},
		TitleKeywordClassifier{},
		ClusterClassifier{},
	}}
}

// NewClassifierChain 使用自定义分类器顺序构造分类链
func NewClassifierChain(classifiers ...RoleClassifier) *ClassifierChain {
	return &ClassifierChain{classifiers: classifiers}
}

func (c *ClassifierChain) Classify(role types.RoleEntry) (bool, bool) {
	for _, cl := range c.classifiers {
		if technical, confident := cl.Classify(role); confident {
			return technical, true
		}
	}
	return false, false
}

// TechStackClassifier 基于技术栈标签判断：有标签即认定为技术岗。
type TechStackClassifier struct{}

func (TechStackClassifier) Classify(role types.RoleEntry) (bool, bool) {
	if len(role.TechStack) > 0 {
		return true, true
	}
	return false, false
}

// 职位名中出现这些关键词时认定为技术岗
var technicalTitleKeywords = []string{
	"engineer", "developer", "programmer", "architect", "devops", "sre",
	"backend", "frontend", "fullstack", "full-stack", "data scientist",
	"工程师", "开发", "架构师", "程序员", "后端", "前端", "算法", "运维", "测试",
}

// 职位名中出现这些关键词时认定为非技术岗
var nonTechnicalTitleKeywords = []string{
	"sales", "recruiter", "accountant", "marketing",
	"销售", "招聘", "会计", "行政", "市场", "运营专员", "客服",
}

// TitleKeywordClassifier 基于职位名关键词判断。
// 命中技术/非技术关键词任意一侧即给出判定，否则不表态。
type TitleKeywordClassifier struct{}

func (TitleKeywordClassifier) Classify(role types.RoleEntry) (bool, bool) {
	title := strings.ToLower(role.Title)
	if title == "" {
		return false, false
	}
	for _, kw := range technicalTitleKeywords {
		if strings.Contains(title, kw) {
			return true, true
		}
	}
	for _, kw := range nonTechnicalTitleKeywords {
		if strings.Contains(title, kw) {
			return false, true
		}
	}
	return false, false
}

// 上游分类器输出的技术类聚类标签
var technicalClusters = map[string]bool{
	"TECH":        true,
	"ENGINEERING": true,
	"SOFTWARE":    true,
	"DATA":        true,
}

// ClusterClassifier 基于上游分类器的聚类标签判断，没有标签时不表态。
type ClusterClassifier struct{}

func (ClusterClassifier) Classify(role types.RoleEntry) (bool, bool) {
	if role.Cluster == "" {
		return false, false
	}
	return technicalClusters[strings.ToUpper(role.Cluster)], true
}
