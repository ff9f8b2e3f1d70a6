package configs

import "gopkg.in/yaml.v3"

// DecorateConfigNode 将硬编码的中文注释注入到配置节点树中。
func DecorateConfigNode(node *yaml.Node) {
	if node.Kind != yaml.DocumentNode || len(node.Content) == 0 {
		return
	}
	root := node.Content[0]
	if root.Kind != yaml.MappingNode {
		return
	}

	root.HeadComment = `# 这个配置文件内的注释是自动生成的，请不要手动修改。
# 需要修改注释时，请在 src/configs/config_comments.go 文件内修改。`

	setFieldLineComment(root, "default_store_path", "# 如果此项为空，就使用工作目录下的 default.shelf")

	setFieldHeadComment(root, "migration", "# 存储文件 schema 迁移配置")
	if migrationNode := findNode(root, "migration"); migrationNode != nil {
		setFieldComment(migrationNode, "backup", "# 迁移前是否备份存储文件（备份与存储文件位于同一目录）", "")
		setFieldComment(migrationNode, "backup_keep", "# 每个存储文件保留的备份数量", "")
		setFieldComment(migrationNode, "backup_name_tmpl",
			`# 备份文件名模板，留空使用默认值
# 可用字段: .Base（存储文件名）.Version（迁移前版本），支持 sprig 函数
# 输出必须以 "<存储文件名>.backup_" 开头，例如:
# backup_name_tmpl: '{{ .Base }}.backup_v{{ .Version }}_{{ now | date "20060102_150405" }}'`, "")
		setFieldComment(migrationNode, "lock_stale_after", "# 迁移锁文件超过该时长即视为过期（例如 10m），0 表示只按持锁进程是否存活判断", "")
		setFieldComment(migrationNode, "busy_timeout", "# 等待其他进程释放存储文件的时长", "")
	}

	setFieldHeadComment(root, "sentry", "# Sentry 错误监控配置（用于收集迁移回调崩溃信息）")
	if sentryNode := findNode(root, "sentry"); sentryNode != nil {
		setFieldComment(sentryNode, "enable", "# 是否启用 Sentry 错误监控", "")
		setFieldComment(sentryNode, "dsn", "# Sentry DSN，留空则禁用。申请地址：https://sentry.io/", "")
		setFieldComment(sentryNode, "environment", "# 环境标识：production 或 development", "")
	}
}

func findNode(mapNode *yaml.Node, key string) *yaml.Node {
	for i := 0; i < len(mapNode.Content); i += 2 {
		if mapNode.Content[i].Value == key {
			return mapNode.Content[i+1]
		}
	}
	return nil
}

func setFieldComment(mapNode *yaml.Node, key, headComment, lineComment string) {
	for i := 0; i < len(mapNode.Content); i += 2 {
		k := mapNode.Content[i]
		if k.Value == key {
			if headComment != "" {
				k.HeadComment = headComment
			}
			if lineComment != "" {
				k.LineComment = lineComment
			}
			return
		}
	}
}

func setFieldLineComment(mapNode *yaml.Node, key, lineComment string) {
	setFieldComment(mapNode, key, "", lineComment)
}

func setFieldHeadComment(mapNode *yaml.Node, key, headComment string) {
	setFieldComment(mapNode, key, headComment, "")
}
