package matcher

import (
	"context"
	"fmt"
	"strings"

	"talent-match-go/internal/logger"
	"talent-match-go/internal/types"
)

// profileText 重建深度评估用的候选人全文材料。
// 优先级：结构化摘要 → 对象存储里的解析原文 → 由结构化字段拼装的降级文本。
// 字符预算由评估器统一执行，这里只负责取到最完整的文本。
func (o *Orchestrator) profileText(ctx context.Context, profile *types.CandidateProfile) string {
	if profile == nil {
		return ""
	}

	if strings.TrimSpace(profile.Summary) != "" {
		return profile.Summary
	}

	if o.texts != nil && profile.RawTextPath != "" {
		text, err := o.texts.GetParsedText(ctx, profile.RawTextPath)
		if err != nil {
			logger.Warn().Err(err).Str("candidate_id", profile.CandidateID).
				Str("path", profile.RawTextPath).Msg("读取候选人解析原文失败，使用结构化字段拼装")
		} else if strings.TrimSpace(text) != "" {
			return text
		}
	}

	return assembleProfileText(profile)
}

// assembleProfileText 从结构化档案拼出可读文本，摘要和原文都缺失时的兜底
func assembleProfileText(profile *types.CandidateProfile) string {
	var sb strings.Builder

	if profile.Name != "" {
		sb.WriteString(fmt.Sprintf("姓名: %s\n", profile.Name))
	}
	if profile.TotalExperienceYears > 0 {
		sb.WriteString(fmt.Sprintf("总工作年限: %.1f年\n", profile.TotalExperienceYears))
	}

	if len(profile.Skills) > 0 {
		names := make([]string, 0, len(profile.Skills))
		for _, s := range profile.Skills {
			names = append(names, s.Name)
		}
		sb.WriteString(fmt.Sprintf("技能: %s\n", strings.Join(names, ", ")))
	}

	if len(profile.Roles) > 0 {
		sb.WriteString("工作经历:\n")
		for _, r := range profile.Roles {
			line := fmt.Sprintf("- %s", r.Title)
			if r.Company != "" {
				line += fmt.Sprintf(" @ %s", r.Company)
			}
			if r.Start != "" {
				end := r.End
				if end == "" {
					end = "至今"
				}
				line += fmt.Sprintf(" (%s - %s)", r.Start, end)
			}
			if len(r.TechStack) > 0 {
				line += fmt.Sprintf("，技术栈: %s", strings.Join(r.TechStack, ", "))
			}
			sb.WriteString(line + "\n")
		}
	}

	return sb.String()
}
